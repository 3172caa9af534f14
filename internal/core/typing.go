package core

import (
	"sync"
	"time"
)

type typingKey struct {
	channelID string
	userID    string
}

// typingTable tracks who is currently typing in which channel. The state is
// transient: never persisted, rebuilt empty on restart, cleared when the
// user stops typing or fully disconnects.
type typingTable struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time // value = typing start time
}

func newTypingTable() *typingTable {
	return &typingTable{entries: make(map[typingKey]time.Time)}
}

// start records the typing flag. Repeated starts refresh the timestamp.
func (t *typingTable) start(channelID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[typingKey{channelID, userID}] = time.Now()
}

func (t *typingTable) stop(channelID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, typingKey{channelID, userID})
}

// clearUser drops all typing entries for a user and returns the channel ids
// that were cleared, so stop events can be broadcast to those rooms.
func (t *typingTable) clearUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var channels []string
	for key := range t.entries {
		if key.userID == userID {
			delete(t.entries, key)
			channels = append(channels, key.channelID)
		}
	}
	return channels
}

// active reports whether the (channel, user) pair has a typing flag set.
func (t *typingTable) active(channelID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{channelID, userID}]
	return ok
}
