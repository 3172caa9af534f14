package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher fans events out to connection sets: a room's subscribers, all
// connections of one user, or every open connection. Delivery is best-effort
// per connection; a failed send is logged and never aborts the remaining
// deliveries in the same call.
type Dispatcher struct {
	mu    sync.RWMutex
	conns map[string]Conn

	registry *Registry
	rooms    *Rooms
	log      *zerolog.Logger
}

// NewDispatcher builds a dispatcher reading the given registry and rooms.
func NewDispatcher(registry *Registry, rooms *Rooms, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		conns:    make(map[string]Conn),
		registry: registry,
		rooms:    rooms,
		log:      logger,
	}
}

// Add makes a connection addressable by the dispatcher.
func (d *Dispatcher) Add(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[conn.ID()] = conn
}

// Remove forgets a connection. Sends to its id become silent no-ops.
func (d *Dispatcher) Remove(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, connID)
}

// ToRoom delivers the event to every connection currently subscribed to the
// room. Connections joining concurrently may or may not see the event.
func (d *Dispatcher) ToRoom(roomID, event string, payload any) {
	for _, connID := range d.rooms.Connections(roomID) {
		d.send(connID, event, payload)
	}
}

// ToUser delivers the event to every open connection of the user and returns
// the number of deliveries attempted. Zero means the user is not connected.
func (d *Dispatcher) ToUser(userID, event string, payload any) int {
	ids := d.registry.Connections(userID)
	for _, connID := range ids {
		d.send(connID, event, payload)
	}
	return len(ids)
}

// BroadcastAll delivers the event to every open connection, including
// anonymous ones.
func (d *Dispatcher) BroadcastAll(event string, payload any) {
	d.mu.RLock()
	ids := make([]string, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	for _, connID := range ids {
		d.send(connID, event, payload)
	}
}

func (d *Dispatcher) send(connID, event string, payload any) {
	d.mu.RLock()
	conn := d.conns[connID]
	d.mu.RUnlock()

	if conn == nil {
		// Connection closed between snapshot and send.
		return
	}
	if err := conn.Send(event, payload); err != nil {
		d.log.Warn().Err(err).Str("conn_id", connID).Str("event", event).Msg("event delivery failed")
	}
}
