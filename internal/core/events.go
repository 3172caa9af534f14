package core

// Event names on the coordinator→client wire.
const (
	EventMessageReceived = "message:received"
	EventMessageEdited   = "message:edited"
	EventMessageDeleted  = "message:deleted"
	EventTypingStarted   = "typing:started"
	EventTypingStopped   = "typing:stopped"
	EventMembersUpdated  = "channel:members:updated"
	EventChannelDeleted  = "channel:deleted"
	EventMemberLeft      = "channel:member:left"
	EventChannelRemoved  = "channel:removed"
	EventJoinRequest     = "channel:joinRequest"
	EventRequestApproved = "channel:request:approved"
	EventRequestRejected = "channel:request:rejected"
	EventPresenceUpdate  = "presence:update"
)

// PresencePayload is broadcast to every connection when a user's first
// connection opens or last connection closes.
type PresencePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// TypingPayload is sent to a room on typing:started / typing:stopped.
type TypingPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// ChannelPayload carries a bare channel reference.
type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

// ChannelUserPayload references a user in the context of a channel.
type ChannelUserPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// MessageDeletedPayload is sent to a room when a message is soft-deleted.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

// UserRef is a resolved user reference in outbound payloads.
type UserRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// JoinRequestPayload notifies a channel creator about a pending join request.
type JoinRequestPayload struct {
	ChannelID   string  `json:"channelId"`
	ChannelName string  `json:"channelName,omitempty"`
	Requester   UserRef `json:"requester"`
}
