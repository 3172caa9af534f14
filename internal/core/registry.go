package core

import "sync"

// Registry tracks which connections are currently open for each user.
// A user is online iff it has at least one registered connection; the
// 0→1 and 1→0 transitions are reported to the caller so presence updates
// fire exactly once per transition.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{} // userID -> set of connection ids
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]struct{})}
}

// Register adds a connection to the user's set. Returns true when the user
// had no open connections before this call (transition to online).
// Registering the same connection twice is a no-op.
func (r *Registry) Register(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	wasOffline := len(set) == 0
	set[connID] = struct{}{}
	return wasOffline
}

// Unregister removes a connection from the user's set. Returns true when
// this was the user's last open connection (transition to offline).
// Unknown users or connections are a safe no-op.
func (r *Registry) Unregister(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Connections returns a snapshot of the user's open connection ids.
func (r *Registry) Connections(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Online reports whether the user currently has any open connection.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}
