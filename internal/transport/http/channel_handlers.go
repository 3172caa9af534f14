package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/service/channels"
	"github.com/vmelnik/chatrelay/internal/store"
)

// ChannelHandlers provides HTTP handlers for channel management endpoints.
type ChannelHandlers struct {
	channels *channels.Service
	log      *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(svc *channels.Service, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{channels: svc, log: logger}
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=64"`
	IsPrivate bool   `json:"isPrivate"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	CreatedBy       string   `json:"createdBy"`
	IsPrivate       bool     `json:"isPrivate"`
	Members         []string `json:"members"`
	PendingRequests []string `json:"pendingRequests,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

// JoinStatusResponse reports the outcome of a join request.
type JoinStatusResponse struct {
	Status string `json:"status"`
}

func channelResponse(ch *store.Channel) ChannelResponse {
	members := ch.Members
	if members == nil {
		members = []string{}
	}
	return ChannelResponse{
		ID:              ch.ID,
		Name:            ch.Name,
		CreatedBy:       ch.CreatedBy,
		IsPrivate:       ch.IsPrivate,
		Members:         members,
		PendingRequests: ch.PendingRequests,
		CreatedAt:       ch.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func channelListResponse(chs []*store.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(chs))
	for _, ch := range chs {
		out = append(out, channelResponse(ch))
	}
	return out
}

func (h *ChannelHandlers) writeChannelErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, channels.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
	case errors.Is(err, channels.ErrNotCreator):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the channel creator may do this"})
	case errors.Is(err, channels.ErrNotMember):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user is not a member"})
	case errors.Is(err, channels.ErrNameRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channel name required"})
	default:
		h.log.Error().Err(err).Msg("channel operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// Create handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) Create(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ch, err := h.channels.Create(c.Request.Context(), userID, req.Name, req.IsPrivate)
	if err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, channelResponse(ch))
}

// List returns the caller's channels, or every channel with ?scope=all.
// GET /api/channels
func (h *ChannelHandlers) List(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var (
		chs []*store.Channel
		err error
	)
	if c.Query("scope") == "all" {
		chs, err = h.channels.ListAll(c.Request.Context())
	} else {
		chs, err = h.channels.ListForUser(c.Request.Context(), userID)
	}
	if err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.JSON(http.StatusOK, channelListResponse(chs))
}

// Search finds channels by name.
// GET /api/channels/search?q=...&limit=...
func (h *ChannelHandlers) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	chs, err := h.channels.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.JSON(http.StatusOK, channelListResponse(chs))
}

// Get returns one channel with members and pending requests.
// GET /api/channels/:id
func (h *ChannelHandlers) Get(c *gin.Context) {
	ch, err := h.channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.JSON(http.StatusOK, channelResponse(ch))
}

// Delete removes a channel and its messages. Creator only.
// DELETE /api/channels/:id
func (h *ChannelHandlers) Delete(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.channels.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave drops the caller's membership.
// POST /api/channels/:id/leave
func (h *ChannelHandlers) Leave(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.channels.Leave(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember kicks a user out of the channel. Creator only.
// DELETE /api/channels/:id/members/:userId
func (h *ChannelHandlers) RemoveMember(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.channels.RemoveMember(c.Request.Context(), c.Param("id"), userID, c.Param("userId")); err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestJoin records a pending join request for a private channel.
// POST /api/channels/:id/requests
func (h *ChannelHandlers) RequestJoin(c *gin.Context) {
	userID, userName, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	status, err := h.channels.RequestJoin(c.Request.Context(), c.Param("id"), userID, userName)
	if err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.JSON(http.StatusOK, JoinStatusResponse{Status: status})
}

// ApproveJoin accepts a pending join request. Creator only.
// POST /api/channels/:id/requests/:userId/approve
func (h *ChannelHandlers) ApproveJoin(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.channels.ApproveJoin(c.Request.Context(), c.Param("id"), userID, c.Param("userId")); err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RejectJoin drops a pending join request. Creator only.
// POST /api/channels/:id/requests/:userId/reject
func (h *ChannelHandlers) RejectJoin(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.channels.RejectJoin(c.Request.Context(), c.Param("id"), userID, c.Param("userId")); err != nil {
		h.writeChannelErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
