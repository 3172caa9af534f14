package core

import "sync"

// Rooms tracks which connections are subscribed to each channel room.
// Subscription is transient: it only controls live event fan-out and is
// independent of persisted channel membership. The whole table resets to
// empty on process restart.
type Rooms struct {
	mu      sync.Mutex
	members map[string]map[string]struct{} // roomID -> set of connection ids
}

// NewRooms constructs an empty room subscription tracker.
func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[string]struct{})}
}

// Join subscribes a connection to a room. Idempotent; returns true when the
// connection was newly added.
func (r *Rooms) Join(roomID, connID string) bool {
	if roomID == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	if _, exists := set[connID]; exists {
		return false
	}
	set[connID] = struct{}{}
	return true
}

// Leave unsubscribes a connection from a room. Idempotent. Empty rooms are
// pruned to keep the table from accumulating dead keys.
func (r *Rooms) Leave(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(roomID, connID)
}

// LeaveAll removes the connection from every room it belongs to and returns
// the ids of the rooms it was in. Safe to call after explicit Leave calls.
func (r *Rooms) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for roomID, set := range r.members {
		if _, ok := set[connID]; ok {
			r.leaveLocked(roomID, connID)
			left = append(left, roomID)
		}
	}
	return left
}

// Connections returns a snapshot of the connection ids subscribed to a room.
func (r *Rooms) Connections(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.members[roomID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *Rooms) leaveLocked(roomID, connID string) bool {
	set, ok := r.members[roomID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.members, roomID)
	}
	return true
}
