package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/store"
)

// Storage is the slice of the persistence layer the coordinator needs.
type Storage interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetChannelByID(ctx context.Context, id string) (*store.Channel, error)
	AddMember(ctx context.Context, channelID, userID string) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	GetMessageByID(ctx context.Context, id string) (*store.Message, error)
	UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) error
	MarkMessageDeleted(ctx context.Context, id string) error
}

// NewMessageRequest carries an inbound message:new action.
type NewMessageRequest struct {
	ChannelID   string
	Text        string
	Attachments []store.Attachment
	ClientID    string
}

// Coordinator owns all transient realtime state: the connection registry,
// room subscriptions, typing flags and the dispatcher. All mutation goes
// through its handler methods; the dispatcher only reads.
type Coordinator struct {
	registry *Registry
	rooms    *Rooms
	typing   *typingTable
	dispatch *Dispatcher

	store     Storage
	verifier  Verifier
	opTimeout time.Duration
	log       *zerolog.Logger
}

// NewCoordinator builds the realtime coordinator. opTimeout bounds every
// store operation performed inside a handler so a hung persistence call
// resolves the ack instead of leaving it pending.
func NewCoordinator(st Storage, verifier Verifier, opTimeout time.Duration, logger *zerolog.Logger) *Coordinator {
	registry := NewRegistry()
	rooms := NewRooms()
	return &Coordinator{
		registry:  registry,
		rooms:     rooms,
		typing:    newTypingTable(),
		dispatch:  NewDispatcher(registry, rooms, logger),
		store:     st,
		verifier:  verifier,
		opTimeout: opTimeout,
		log:       logger,
	}
}

// Events exposes the dispatcher for collaborators outside the realtime path
// (REST handlers broadcasting membership changes, notifications).
func (c *Coordinator) Events() *Dispatcher { return c.dispatch }

// Online reports whether a user has at least one open connection.
func (c *Coordinator) Online(userID string) bool { return c.registry.Online(userID) }

// Connect performs the session handshake for a freshly opened connection.
// An absent or invalid token leaves the connection anonymous rather than
// rejecting it; a valid token binds the identity and registers the
// connection for presence, broadcasting presence:update on the 0→1
// transition.
func (c *Coordinator) Connect(conn Conn, token string) *Session {
	sess := &Session{Conn: conn}
	if token != "" {
		if id, ok := c.verifier.Verify(token); ok {
			sess.UserID = id.UserID
			sess.Name = id.Name
		} else {
			c.log.Debug().Str("conn_id", conn.ID()).Msg("handshake token rejected, continuing anonymous")
		}
	}

	c.dispatch.Add(conn)

	if sess.Authenticated() {
		if c.registry.Register(sess.UserID, conn.ID()) {
			c.dispatch.BroadcastAll(EventPresenceUpdate, PresencePayload{UserID: sess.UserID, Online: true})
		}
	}

	c.log.Info().
		Str("conn_id", conn.ID()).
		Str("user_id", sess.UserID).
		Msg("connection opened")
	return sess
}

// Disconnect runs the connection-close cleanup. It always completes: room
// subscriptions are dropped, the registry entry is removed (broadcasting
// presence offline on the 1→0 transition) and lingering typing flags are
// cleared. Must be called exactly once per connection.
func (c *Coordinator) Disconnect(sess *Session) {
	connID := sess.Conn.ID()
	c.rooms.LeaveAll(connID)

	if sess.Authenticated() {
		if c.registry.Unregister(sess.UserID, connID) {
			for _, channelID := range c.typing.clearUser(sess.UserID) {
				c.dispatch.ToRoom(channelID, EventTypingStopped, TypingPayload{ChannelID: channelID, UserID: sess.UserID})
			}
			c.dispatch.BroadcastAll(EventPresenceUpdate, PresencePayload{UserID: sess.UserID, Online: false})
		}
	}

	c.dispatch.Remove(connID)
	c.log.Info().
		Str("conn_id", connID).
		Str("user_id", sess.UserID).
		Msg("connection closed")
}

// JoinChannel subscribes the connection to the channel room. Anonymous
// connections only get the live subscription. Authenticated users are also
// granted persisted membership when the channel is public; private channels
// require existing membership, everyone else is pointed at the join-request
// workflow.
func (c *Coordinator) JoinChannel(ctx context.Context, sess *Session, channelID string) Ack {
	if channelID == "" {
		return ackErr(ErrMsgChannelRequired)
	}

	if sess.Authenticated() {
		ctx, cancel := c.opCtx(ctx)
		defer cancel()

		ch, err := c.store.GetChannelByID(ctx, channelID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ackErr(ErrMsgChannelNotFound)
			}
			c.log.Error().Err(err).Str("channel_id", channelID).Msg("join: load channel")
			return ackErr(ErrMsgChannelNotFound)
		}

		if !ch.HasMember(sess.UserID) {
			if ch.IsPrivate {
				return ackErr(ErrMsgJoinRequired)
			}
			if err := c.store.AddMember(ctx, channelID, sess.UserID); err != nil {
				c.log.Error().Err(err).Str("channel_id", channelID).Str("user_id", sess.UserID).Msg("join: add member")
			}
		}
	}

	c.rooms.Join(channelID, sess.Conn.ID())
	c.dispatch.ToRoom(channelID, EventMembersUpdated, ChannelPayload{ChannelID: channelID})
	return ackOK()
}

// LeaveChannel drops the room subscription only; persisted membership is a
// separate explicit action through the channels service. Other viewers get a
// members-updated nudge so they can refetch.
func (c *Coordinator) LeaveChannel(sess *Session, channelID string) Ack {
	if channelID == "" {
		return ackErr(ErrMsgChannelRequired)
	}
	c.rooms.Leave(channelID, sess.Conn.ID())
	c.dispatch.ToRoom(channelID, EventMembersUpdated, ChannelPayload{ChannelID: channelID})
	return ackOK()
}

// TypingStart flags the user as typing and notifies the room. Repeated
// starts simply re-broadcast; receivers keep their own idempotent UI state.
// Anonymous connections are ignored.
func (c *Coordinator) TypingStart(sess *Session, channelID string) {
	if channelID == "" || !sess.Authenticated() {
		return
	}
	c.typing.start(channelID, sess.UserID)
	c.dispatch.ToRoom(channelID, EventTypingStarted, TypingPayload{ChannelID: channelID, UserID: sess.UserID})
}

// TypingStop clears the typing flag and notifies the room.
func (c *Coordinator) TypingStop(sess *Session, channelID string) {
	if channelID == "" || !sess.Authenticated() {
		return
	}
	c.typing.stop(channelID, sess.UserID)
	c.dispatch.ToRoom(channelID, EventTypingStopped, TypingPayload{ChannelID: channelID, UserID: sess.UserID})
}

// NewMessage persists a message and fans it out to the channel room. The ack
// carries the materialized message, including the echoed client id.
func (c *Coordinator) NewMessage(ctx context.Context, sess *Session, req NewMessageRequest) Ack {
	if !sess.Authenticated() {
		return ackErr(ErrMsgUnauthorized)
	}
	if req.ChannelID == "" {
		return ackErr(ErrMsgChannelRequired)
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	msg := &store.Message{
		ChannelID:   req.ChannelID,
		SenderID:    sess.UserID,
		Text:        req.Text,
		Attachments: req.Attachments,
		ClientID:    req.ClientID,
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		c.log.Error().Err(err).Str("channel_id", req.ChannelID).Str("user_id", sess.UserID).Msg("message:new persist failed")
		return ackErr(ErrMsgSaveFailed)
	}

	out := NewMessagePayload(msg, c.senderName(ctx, sess))
	c.dispatch.ToRoom(req.ChannelID, EventMessageReceived, out)
	return ackMessage(out)
}

// EditMessage updates a message's text. Only the original sender may edit.
func (c *Coordinator) EditMessage(ctx context.Context, sess *Session, messageID, text string) Ack {
	if !sess.Authenticated() {
		return ackErr(ErrMsgUnauthorized)
	}
	if messageID == "" {
		return ackErr(ErrMsgMessageRequired)
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	msg, err := c.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return c.ackLoadMessage(err, messageID)
	}
	if msg.SenderID != sess.UserID {
		return ackErr(ErrMsgForbidden)
	}

	editedAt := time.Now().UTC()
	if err := c.store.UpdateMessageText(ctx, messageID, text, editedAt); err != nil {
		c.log.Error().Err(err).Str("message_id", messageID).Msg("message:edit persist failed")
		return ackErr(ErrMsgSaveFailed)
	}
	msg.Text = text
	msg.EditedAt = &editedAt

	out := NewMessagePayload(msg, c.senderName(ctx, sess))
	c.dispatch.ToRoom(msg.ChannelID, EventMessageEdited, out)
	return ackMessage(out)
}

// DeleteMessage soft-deletes a message. Allowed for the original sender and
// for the creator of the channel the message lives in.
func (c *Coordinator) DeleteMessage(ctx context.Context, sess *Session, messageID string) Ack {
	if !sess.Authenticated() {
		return ackErr(ErrMsgUnauthorized)
	}
	if messageID == "" {
		return ackErr(ErrMsgMessageRequired)
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	msg, err := c.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return c.ackLoadMessage(err, messageID)
	}

	allowed := msg.SenderID == sess.UserID
	if !allowed {
		ch, err := c.store.GetChannelByID(ctx, msg.ChannelID)
		if err == nil && ch.CreatedBy == sess.UserID {
			allowed = true
		}
	}
	if !allowed {
		return ackErr(ErrMsgForbidden)
	}

	if err := c.store.MarkMessageDeleted(ctx, messageID); err != nil {
		c.log.Error().Err(err).Str("message_id", messageID).Msg("message:delete persist failed")
		return ackErr(ErrMsgSaveFailed)
	}

	c.dispatch.ToRoom(msg.ChannelID, EventMessageDeleted, MessageDeletedPayload{MessageID: messageID})
	return ackOK()
}

func (c *Coordinator) ackLoadMessage(err error, messageID string) Ack {
	if errors.Is(err, store.ErrNotFound) {
		return ackErr(ErrMsgMessageNotFound)
	}
	c.log.Error().Err(err).Str("message_id", messageID).Msg("load message")
	return ackErr(ErrMsgMessageNotFound)
}

// senderName resolves the display name for outbound payloads, falling back
// to a store lookup when the handshake token carried no name.
func (c *Coordinator) senderName(ctx context.Context, sess *Session) string {
	if sess.Name != "" {
		return sess.Name
	}
	user, err := c.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return ""
	}
	return user.Name
}

func (c *Coordinator) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
