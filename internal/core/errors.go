package core

// Ack failure messages on the wire. Clients match on these strings, so they
// are part of the protocol contract.
const (
	ErrMsgUnauthorized    = "Unauthorized (socket)"
	ErrMsgForbidden       = "Forbidden"
	ErrMsgChannelRequired = "channelId required"
	ErrMsgMessageRequired = "messageId required"
	ErrMsgChannelNotFound = "Channel not found"
	ErrMsgMessageNotFound = "Message not found"
	ErrMsgJoinRequired    = "Join request required"
	ErrMsgSaveFailed      = "Failed to save message"
)

// Ack is the uniform result of a client-initiated action. Exactly one ack is
// produced per recognized action; errors never propagate past it.
type Ack struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
}

func ackOK() Ack { return Ack{OK: true} }

func ackMessage(msg MessagePayload) Ack { return Ack{OK: true, Message: &msg} }

func ackErr(msg string) Ack { return Ack{OK: false, Error: msg} }
