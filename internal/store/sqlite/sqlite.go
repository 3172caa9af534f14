package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vmelnik/chatrelay/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar_url    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_by TEXT NOT NULL REFERENCES users(id),
	is_private INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id),
	joined_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS channel_requests (
	channel_id   TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL REFERENCES users(id),
	requested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	channel_id  TEXT NOT NULL REFERENCES channels(id),
	sender_id   TEXT NOT NULL REFERENCES users(id),
	text        TEXT NOT NULL DEFAULT '',
	attachments TEXT NOT NULL DEFAULT '[]',
	client_id   TEXT,
	created_at  DATETIME NOT NULL,
	edited_at   DATETIME,
	deleted     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_created
	ON messages (channel_id, created_at DESC);
`

// New creates a new SQLite store and bootstraps the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user, assigning id and creation time.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, name, email, password_hash, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.AvatarURL, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, created_at
		FROM users
		WHERE ` + where

	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== ChannelStore implementation ====

// CreateChannel inserts a new channel with the creator as first member.
func (s *SQLiteStore) CreateChannel(ctx context.Context, ch *store.Channel) error {
	ch.ID = uuid.NewString()
	ch.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, name, created_by, is_private, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ch.ID, ch.Name, ch.CreatedBy, ch.IsPrivate, ch.CreatedAt); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id) VALUES (?, ?)
	`, ch.ID, ch.CreatedBy); err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	ch.Members = []string{ch.CreatedBy}
	return nil
}

// GetChannelByID retrieves a channel with members and pending requests.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	query := `
		SELECT id, name, created_by, is_private, created_at
		FROM channels
		WHERE id = ?
	`
	var ch store.Channel
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.CreatedBy,
		&ch.IsPrivate,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}

	if ch.Members, err = s.listUserIDs(ctx, "channel_members", id); err != nil {
		return nil, err
	}
	if ch.PendingRequests, err = s.listUserIDs(ctx, "channel_requests", id); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *SQLiteStore) listUserIDs(ctx context.Context, table, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM "+table+" WHERE channel_id = ? ORDER BY user_id", channelID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListChannelsForUser lists channels the user is a member of.
func (s *SQLiteStore) ListChannelsForUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	query := `
		SELECT c.id
		FROM channels c
		JOIN channel_members cm ON c.id = cm.channel_id
		WHERE cm.user_id = ?
		ORDER BY c.created_at DESC
	`
	return s.channelsByQuery(ctx, query, userID)
}

// ListChannels lists all channels.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]*store.Channel, error) {
	return s.channelsByQuery(ctx, `SELECT id FROM channels ORDER BY created_at DESC`)
}

// SearchChannels finds channels whose name contains the query.
func (s *SQLiteStore) SearchChannels(ctx context.Context, query string, limit int) ([]*store.Channel, error) {
	q := `
		SELECT id FROM channels
		WHERE name LIKE '%' || ? || '%'
		ORDER BY name
		LIMIT ?
	`
	return s.channelsByQuery(ctx, q, query, limit)
}

func (s *SQLiteStore) channelsByQuery(ctx context.Context, query string, args ...any) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	channels := make([]*store.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := s.GetChannelByID(ctx, id)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// AddMember adds a user to the channel member list. Idempotent.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_members (channel_id, user_id) VALUES (?, ?)
	`, channelID, userID); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from the channel member list.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddPendingRequest records a join request. Idempotent.
func (s *SQLiteStore) AddPendingRequest(ctx context.Context, channelID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_requests (channel_id, user_id) VALUES (?, ?)
	`, channelID, userID); err != nil {
		return fmt.Errorf("insert pending request: %w", err)
	}
	return nil
}

// RemovePendingRequest drops a join request. Idempotent.
func (s *SQLiteStore) RemovePendingRequest(ctx context.Context, channelID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM channel_requests WHERE channel_id = ? AND user_id = ?
	`, channelID, userID); err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	return nil
}

// DeleteChannel removes the channel; membership and request rows cascade.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage inserts a message, assigning id and creation time.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, channel_id, sender_id, text, attachments, client_id, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`
	var clientID sql.NullString
	if msg.ClientID != "" {
		clientID = sql.NullString{String: msg.ClientID, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Text, string(attachments), clientID, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessageByID retrieves a message, including soft-deleted ones.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, channel_id, sender_id, text, attachments, COALESCE(client_id, ''), created_at, edited_at, deleted
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessages returns up to limit non-deleted messages in ascending
// creation order, with keyset pagination on the beforeID message.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*store.Message, bool, error) {
	args := []any{channelID}
	query := `
		SELECT id, channel_id, sender_id, text, attachments, COALESCE(client_id, ''), created_at, edited_at, deleted
		FROM messages
		WHERE channel_id = ? AND deleted = 0
	`
	if beforeID != "" {
		ref, err := s.GetMessageByID(ctx, beforeID)
		if err != nil {
			return nil, false, err
		}
		query += ` AND created_at < ?`
		args = append(args, ref.CreatedAt)
	}
	// Fetch one extra row to detect whether older messages remain.
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	// Oldest first for the client.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

// UpdateMessageText replaces the text and stamps the edit time.
func (s *SQLiteStore) UpdateMessageText(ctx context.Context, id, text string, editedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET text = ?, edited_at = ? WHERE id = ?
	`, text, editedAt, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkMessageDeleted soft-deletes a message; the record is retained.
func (s *SQLiteStore) MarkMessageDeleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark message deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteChannelMessages removes all messages of a channel.
func (s *SQLiteStore) DeleteChannelMessages(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("delete channel messages: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg         store.Message
		attachments string
		editedAt    sql.NullTime
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.SenderID,
		&msg.Text,
		&attachments,
		&msg.ClientID,
		&msg.CreatedAt,
		&editedAt,
		&msg.Deleted,
	); err != nil {
		return nil, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &msg, nil
}
