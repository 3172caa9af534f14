package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client. Seq is a
// client-chosen correlation id; frames carrying a non-zero Seq receive an
// ack frame with the same Seq.
type Inbound struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeChannelJoin   = "channel:join"
	InboundTypeChannelLeave  = "channel:leave"
	InboundTypeTypingStart   = "typing:start"
	InboundTypeTypingStop    = "typing:stop"
	InboundTypeMessageNew    = "message:new"
	InboundTypeMessageEdit   = "message:edit"
	InboundTypeMessageDelete = "message:delete"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"
)

// ChannelData references a channel in join/leave/typing frames.
type ChannelData struct {
	ChannelID string `json:"channelId"`
}

// AttachmentData is a file reference on an inbound message.
type AttachmentData struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

// MessageNewData is an inbound message:new frame.
type MessageNewData struct {
	ChannelID   string           `json:"channelId"`
	Text        string           `json:"text"`
	Attachments []AttachmentData `json:"attachments,omitempty"`
	ClientID    string           `json:"clientId,omitempty"`
}

// MessageEditData is an inbound message:edit frame.
type MessageEditData struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// MessageDeleteData is an inbound message:delete frame.
type MessageDeleteData struct {
	MessageID string `json:"messageId"`
}

// Outbound is the envelope for frames sent to the client. Event frames carry
// the event name and payload; ack frames echo the inbound Seq with the
// handler's result in Data.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
