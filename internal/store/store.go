package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}

// Channel represents a group-messaging channel. Members and PendingRequests
// hold user ids; transient room subscriptions live in the coordinator, not
// here.
type Channel struct {
	ID              string
	Name            string
	CreatedBy       string
	IsPrivate       bool
	Members         []string
	PendingRequests []string
	CreatedAt       time.Time
}

// HasMember reports whether the user id is in the persisted member list.
func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// HasPendingRequest reports whether the user id has a pending join request.
func (c *Channel) HasPendingRequest(userID string) bool {
	for _, m := range c.PendingRequests {
		if m == userID {
			return true
		}
	}
	return false
}

// Attachment is a file reference carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

// Message represents a persisted chat message. Deleted messages are retained
// as tombstones (soft delete).
type Message struct {
	ID          string
	ChannelID   string
	SenderID    string
	Text        string
	Attachments []Attachment
	ClientID    string // optional client-supplied temporary id, echoed back
	CreatedAt   time.Time
	EditedAt    *time.Time
	Deleted     bool
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser inserts a new user; ID and CreatedAt are assigned.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by id.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ChannelStore handles channel and membership persistence.
type ChannelStore interface {
	// CreateChannel inserts a new channel; ID and CreatedAt are assigned.
	// The creator is stored as the first member.
	CreateChannel(ctx context.Context, ch *Channel) error

	// GetChannelByID retrieves a channel with members and pending requests.
	GetChannelByID(ctx context.Context, id string) (*Channel, error)

	// ListChannelsForUser lists channels the user is a member of.
	ListChannelsForUser(ctx context.Context, userID string) ([]*Channel, error)

	// ListChannels lists all channels.
	ListChannels(ctx context.Context) ([]*Channel, error)

	// SearchChannels finds channels whose name matches the query, capped at
	// limit results.
	SearchChannels(ctx context.Context, query string, limit int) ([]*Channel, error)

	// AddMember adds a user to the channel member list. Idempotent.
	AddMember(ctx context.Context, channelID, userID string) error

	// RemoveMember removes a user from the channel member list. Returns
	// ErrNotFound if the user was not a member.
	RemoveMember(ctx context.Context, channelID, userID string) error

	// AddPendingRequest records a join request. Idempotent.
	AddPendingRequest(ctx context.Context, channelID, userID string) error

	// RemovePendingRequest drops a join request. Idempotent.
	RemovePendingRequest(ctx context.Context, channelID, userID string) error

	// DeleteChannel removes the channel and its membership rows.
	DeleteChannel(ctx context.Context, id string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage inserts a message; ID and CreatedAt are assigned on the
	// passed record.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessageByID retrieves a message (including soft-deleted ones).
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// ListMessages returns up to limit non-deleted messages of a channel in
	// ascending creation order. When beforeID is non-empty only messages
	// older than that message are returned. hasMore reports whether older
	// messages remain.
	ListMessages(ctx context.Context, channelID string, limit int, beforeID string) (msgs []*Message, hasMore bool, err error)

	// UpdateMessageText replaces the text and stamps the edit time.
	UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) error

	// MarkMessageDeleted soft-deletes a message; the record is retained.
	MarkMessageDeleted(ctx context.Context, id string) error

	// DeleteChannelMessages removes all messages of a channel.
	DeleteChannelMessages(ctx context.Context, channelID string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
