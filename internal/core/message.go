package core

import (
	"time"

	"github.com/vmelnik/chatrelay/internal/store"
)

// MessagePayload is the materialized message shape sent to clients, both in
// room broadcasts and in acks. ClientID echoes the sender's optimistic id so
// it can reconcile its local copy with the server-assigned one.
type MessagePayload struct {
	ID          string             `json:"_id"`
	ChannelID   string             `json:"channelId"`
	SenderID    string             `json:"senderId"`
	SenderName  string             `json:"senderName,omitempty"`
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments"`
	ClientID    string             `json:"clientId,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	EditedAt    *time.Time         `json:"editedAt,omitempty"`
	Deleted     bool               `json:"deleted"`
}

// NewMessagePayload materializes a stored message for the wire.
func NewMessagePayload(msg *store.Message, senderName string) MessagePayload {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []store.Attachment{}
	}
	return MessagePayload{
		ID:          msg.ID,
		ChannelID:   msg.ChannelID,
		SenderID:    msg.SenderID,
		SenderName:  senderName,
		Text:        msg.Text,
		Attachments: attachments,
		ClientID:    msg.ClientID,
		CreatedAt:   msg.CreatedAt,
		EditedAt:    msg.EditedAt,
		Deleted:     msg.Deleted,
	}
}
