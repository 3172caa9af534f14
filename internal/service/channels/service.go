package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/store"
)

// Common errors for channel operations.
var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNameRequired    = errors.New("channel name required")
	ErrNotCreator      = errors.New("only the channel creator may do this")
	ErrNotMember       = errors.New("user is not a member")
)

// Join request status values returned by RequestJoin.
const (
	JoinStatusAlreadyMember = "already_member"
	JoinStatusPending       = "pending"
)

// Notifier is the slice of the event dispatcher this service needs.
type Notifier interface {
	ToRoom(roomID, event string, payload any)
	ToUser(userID, event string, payload any) int
	BroadcastAll(event string, payload any)
}

// Service provides channel lifecycle and membership business logic,
// including the join-request workflow that gates private channels.
type Service struct {
	store  store.Store
	events Notifier
	log    *zerolog.Logger
}

// New creates a new channel service.
func New(st store.Store, events Notifier, logger *zerolog.Logger) *Service {
	return &Service{store: st, events: events, log: logger}
}

// Create makes a new channel with the creator as first member.
func (s *Service) Create(ctx context.Context, creatorID, name string, isPrivate bool) (*store.Channel, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	ch := &store.Channel{Name: name, CreatedBy: creatorID, IsPrivate: isPrivate}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// ListForUser returns the channels the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	return s.store.ListChannelsForUser(ctx, userID)
}

// ListAll returns every channel, for discovery views.
func (s *Service) ListAll(ctx context.Context) ([]*store.Channel, error) {
	return s.store.ListChannels(ctx)
}

// Search finds channels by name.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*store.Channel, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 30 {
		limit = 30
	}
	return s.store.SearchChannels(ctx, query, limit)
}

// Get returns a channel with members and pending requests.
func (s *Service) Get(ctx context.Context, channelID string) (*store.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return ch, nil
}

// Leave removes the user's persisted membership. Leaving a channel you are
// not in succeeds quietly, but still nudges viewers to refresh.
func (s *Service) Leave(ctx context.Context, channelID, userID string) error {
	if _, err := s.Get(ctx, channelID); err != nil {
		return err
	}

	err := s.store.RemoveMember(ctx, channelID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remove member: %w", err)
	}

	s.events.ToRoom(channelID, core.EventMembersUpdated, core.ChannelPayload{ChannelID: channelID})
	s.events.BroadcastAll(core.EventMemberLeft, core.ChannelUserPayload{ChannelID: channelID, UserID: userID})
	return nil
}

// Delete removes the channel and its messages. Creator only.
func (s *Service) Delete(ctx context.Context, channelID, actorID string) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.CreatedBy != actorID {
		return ErrNotCreator
	}

	if err := s.store.DeleteChannelMessages(ctx, channelID); err != nil {
		// The channel can still be removed; orphaned messages are logged.
		s.log.Error().Err(err).Str("channel_id", channelID).Msg("delete channel messages")
	}
	if err := s.store.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	s.events.BroadcastAll(core.EventChannelDeleted, core.ChannelPayload{ChannelID: channelID})
	return nil
}

// RemoveMember kicks a user out of the channel. Creator only. The removed
// user is notified directly; the room gets a members-updated nudge.
func (s *Service) RemoveMember(ctx context.Context, channelID, actorID, userID string) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.CreatedBy != actorID {
		return ErrNotCreator
	}

	if err := s.store.RemoveMember(ctx, channelID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		return fmt.Errorf("remove member: %w", err)
	}

	s.events.ToUser(userID, core.EventChannelRemoved, core.ChannelPayload{ChannelID: channelID})
	s.events.ToRoom(channelID, core.EventMembersUpdated, core.ChannelPayload{ChannelID: channelID})
	return nil
}

// RequestJoin records a pending join request and notifies the channel
// creator on all of their open connections.
func (s *Service) RequestJoin(ctx context.Context, channelID, userID, userName string) (string, error) {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return "", err
	}
	if ch.HasMember(userID) {
		return JoinStatusAlreadyMember, nil
	}
	if ch.HasPendingRequest(userID) {
		return JoinStatusPending, nil
	}

	if err := s.store.AddPendingRequest(ctx, channelID, userID); err != nil {
		return "", fmt.Errorf("add pending request: %w", err)
	}

	sent := s.events.ToUser(ch.CreatedBy, core.EventJoinRequest, core.JoinRequestPayload{
		ChannelID:   channelID,
		ChannelName: ch.Name,
		Requester:   core.UserRef{ID: userID, Name: userName},
	})
	if sent == 0 {
		s.log.Debug().Str("channel_id", channelID).Str("creator_id", ch.CreatedBy).Msg("join request: creator offline")
	}
	return JoinStatusPending, nil
}

// ApproveJoin moves a pending request to membership. Creator only. The
// requester is notified directly and the room refreshes its member list.
func (s *Service) ApproveJoin(ctx context.Context, channelID, actorID, userID string) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.CreatedBy != actorID {
		return ErrNotCreator
	}

	if err := s.store.RemovePendingRequest(ctx, channelID, userID); err != nil {
		return fmt.Errorf("remove pending request: %w", err)
	}
	if err := s.store.AddMember(ctx, channelID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	s.events.ToUser(userID, core.EventRequestApproved, core.ChannelUserPayload{ChannelID: channelID, UserID: userID})
	s.events.ToRoom(channelID, core.EventMembersUpdated, core.ChannelPayload{ChannelID: channelID})
	return nil
}

// RejectJoin drops a pending request. Creator only.
func (s *Service) RejectJoin(ctx context.Context, channelID, actorID, userID string) error {
	ch, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.CreatedBy != actorID {
		return ErrNotCreator
	}

	if err := s.store.RemovePendingRequest(ctx, channelID, userID); err != nil {
		return fmt.Errorf("remove pending request: %w", err)
	}

	s.events.ToUser(userID, core.EventRequestRejected, core.ChannelUserPayload{ChannelID: channelID, UserID: userID})
	return nil
}
