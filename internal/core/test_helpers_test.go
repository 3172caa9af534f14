package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/vmelnik/chatrelay/internal/store"
)

// fakeConn records everything sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []sentEvent
	fail   bool
}

type sentEvent struct {
	Event   string
	Payload any
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSendFailed
	}
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) sent(event string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, ev := range c.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

var errSendFailed = errors.New("send failed")

// memStore is an in-memory Storage implementation for coordinator tests.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*store.User
	channels map[string]*store.Channel
	messages map[string]*store.Message
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*store.User),
		channels: make(map[string]*store.Channel),
		messages: make(map[string]*store.Message),
	}
}

func (m *memStore) addUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &store.User{ID: id, Name: name}
}

func (m *memStore) addChannel(id, name, createdBy string, isPrivate bool, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[id] = &store.Channel{
		ID:        id,
		Name:      name,
		CreatedBy: createdBy,
		IsPrivate: isPrivate,
		Members:   members,
	}
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetChannelByID(_ context.Context, id string) (*store.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memStore) AddMember(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	if !ch.HasMember(userID) {
		ch.Members = append(ch.Members, userID)
	}
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = "m" + strconv.Itoa(m.nextID)
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memStore) GetMessageByID(_ context.Context, id string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memStore) UpdateMessageText(_ context.Context, id, text string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Text = text
	msg.EditedAt = &editedAt
	return nil
}

func (m *memStore) MarkMessageDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Deleted = true
	return nil
}

func (m *memStore) deleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return ok && msg.Deleted
}

// staticVerifier maps fixed tokens to identities.
type staticVerifier map[string]Identity

func (v staticVerifier) Verify(token string) (Identity, bool) {
	id, ok := v[token]
	return id, ok
}
