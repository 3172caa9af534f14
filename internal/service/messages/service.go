package messages

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/store"
)

// Common errors for message operations.
var (
	ErrChannelRequired = errors.New("channelId required")
	ErrChannelNotFound = errors.New("channel not found")
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// Notifier delivers room-scoped events for messages created over REST, so
// the realtime path and the request/response path produce identical
// broadcasts.
type Notifier interface {
	ToRoom(roomID, event string, payload any)
}

// Service provides the request/response message API.
type Service struct {
	store  store.Store
	events Notifier
	log    *zerolog.Logger
}

// New creates a new message service.
func New(st store.Store, events Notifier, logger *zerolog.Logger) *Service {
	return &Service{store: st, events: events, log: logger}
}

// Create persists a message posted over REST and fans it out to the channel
// room exactly like the realtime path does.
func (s *Service) Create(ctx context.Context, senderID, senderName string, channelID, text string, attachments []store.Attachment, clientID string) (*core.MessagePayload, error) {
	if channelID == "" {
		return nil, ErrChannelRequired
	}
	if _, err := s.store.GetChannelByID(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}

	msg := &store.Message{
		ChannelID:   channelID,
		SenderID:    senderID,
		Text:        text,
		Attachments: attachments,
		ClientID:    clientID,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if senderName == "" {
		if u, err := s.store.GetUserByID(ctx, senderID); err == nil {
			senderName = u.Name
		}
	}
	out := core.NewMessagePayload(msg, senderName)
	s.events.ToRoom(channelID, core.EventMessageReceived, out)
	return &out, nil
}

// Page is one page of channel history, oldest first.
type Page struct {
	Messages []core.MessagePayload
	HasMore  bool
}

// List returns channel history with keyset pagination on beforeID. The limit
// is clamped to 1..100 with a default of 30.
func (s *Service) List(ctx context.Context, channelID string, limit int, beforeID string) (*Page, error) {
	if channelID == "" {
		return nil, ErrChannelRequired
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	msgs, hasMore, err := s.store.ListMessages(ctx, channelID, limit, beforeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}

	names := make(map[string]string)
	out := make([]core.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		name, ok := names[msg.SenderID]
		if !ok {
			if u, err := s.store.GetUserByID(ctx, msg.SenderID); err == nil {
				name = u.Name
			}
			names[msg.SenderID] = name
		}
		out = append(out, core.NewMessagePayload(msg, name))
	}
	return &Page{Messages: out, HasMore: hasMore}, nil
}
