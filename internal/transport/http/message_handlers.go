package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/service/messages"
	"github.com/vmelnik/chatrelay/internal/store"
)

// MessageHandlers provides HTTP handlers for message history and posting.
type MessageHandlers struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{messages: svc, log: logger}
}

// CreateMessageRequest represents the post message request body.
type CreateMessageRequest struct {
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments"`
	ClientID    string             `json:"clientId"`
}

// MessagePageResponse is one page of channel history, oldest first.
type MessagePageResponse struct {
	Messages []core.MessagePayload `json:"messages"`
	HasMore  bool                  `json:"hasMore"`
}

func (h *MessageHandlers) writeMessageErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
	case errors.Is(err, messages.ErrChannelRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channelId required"})
	default:
		h.log.Error().Err(err).Msg("message operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// List returns channel history with keyset pagination.
// GET /api/channels/:id/messages?limit=...&before=...
func (h *MessageHandlers) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.messages.List(c.Request.Context(), c.Param("id"), limit, c.Query("before"))
	if err != nil {
		h.writeMessageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, MessagePageResponse{Messages: page.Messages, HasMore: page.HasMore})
}

// Create posts a message over REST. The broadcast to the channel room is
// identical to the realtime path.
// POST /api/channels/:id/messages
func (h *MessageHandlers) Create(c *gin.Context) {
	userID, userName, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), userID, userName, c.Param("id"), req.Text, req.Attachments, req.ClientID)
	if err != nil {
		h.writeMessageErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
