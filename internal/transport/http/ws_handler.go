package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/proto"
	"github.com/vmelnik/chatrelay/internal/store"
	"github.com/vmelnik/chatrelay/internal/utils"
)

const wsWriteTimeout = 10 * time.Second

// wsConn adapts a websocket connection to core.Conn. Writes are serialized
// under a mutex because the dispatcher fans out events from many goroutines
// while the read loop writes acks.
type wsConn struct {
	id   string
	sock *websocket.Conn

	mu sync.Mutex
}

func (c *wsConn) ID() string { return c.id }

// Send delivers an event frame to the client.
func (c *wsConn) Send(event string, payload any) error {
	return c.write(proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event,
		Data:  payload,
	})
}

func (c *wsConn) write(frame proto.Outbound) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.sock, frame)
}

// WSHandler upgrades HTTP connections and bridges them to the realtime
// coordinator.
type WSHandler struct {
	coord *core.Coordinator
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(coord *core.Coordinator, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{coord: coord, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer sock.Close(websocket.StatusInternalError, "internal error")

	conn := &wsConn{id: utils.NewConnID(), sock: sock}

	// The handshake token rides on the query string; browsers cannot set
	// headers on WebSocket upgrades.
	sess := h.coord.Connect(conn, r.URL.Query().Get("token"))
	defer h.coord.Disconnect(sess)

	err = h.readLoop(r.Context(), conn, sess)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", conn.id).Msg("ws connection closed with error")
		}
	}

	sock.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *wsConn, sess *core.Session) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn.sock, &inbound); err != nil {
			return err
		}
		if err := h.handle(ctx, conn, sess, inbound); err != nil {
			return err
		}
	}
}

// handle dispatches one inbound frame. Handler errors resolve into ack or
// error frames; only write failures tear down the connection.
func (h *WSHandler) handle(ctx context.Context, conn *wsConn, sess *core.Session, in proto.Inbound) error {
	switch in.Type {
	case proto.InboundTypeChannelJoin:
		var d proto.ChannelData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		return h.writeAck(conn, in, h.coord.JoinChannel(ctx, sess, d.ChannelID))

	case proto.InboundTypeChannelLeave:
		var d proto.ChannelData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		return h.writeAck(conn, in, h.coord.LeaveChannel(sess, d.ChannelID))

	case proto.InboundTypeTypingStart:
		var d proto.ChannelData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		h.coord.TypingStart(sess, d.ChannelID)
		return nil

	case proto.InboundTypeTypingStop:
		var d proto.ChannelData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		h.coord.TypingStop(sess, d.ChannelID)
		return nil

	case proto.InboundTypeMessageNew:
		var d proto.MessageNewData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		req := core.NewMessageRequest{
			ChannelID:   d.ChannelID,
			Text:        d.Text,
			Attachments: attachmentsFromProto(d.Attachments),
			ClientID:    d.ClientID,
		}
		return h.writeAck(conn, in, h.coord.NewMessage(ctx, sess, req))

	case proto.InboundTypeMessageEdit:
		var d proto.MessageEditData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		return h.writeAck(conn, in, h.coord.EditMessage(ctx, sess, d.MessageID, d.Text))

	case proto.InboundTypeMessageDelete:
		var d proto.MessageDeleteData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return h.writeBadPayload(conn, in)
		}
		return h.writeAck(conn, in, h.coord.DeleteMessage(ctx, sess, d.MessageID))

	default:
		h.log.Debug().Str("conn_id", conn.id).Str("type", in.Type).Msg("unknown inbound frame type")
		return conn.write(proto.Outbound{
			Type:  proto.OutboundTypeError,
			Seq:   in.Seq,
			Error: &proto.Error{Code: "unknown_type", Msg: "unknown frame type: " + in.Type},
		})
	}
}

// writeAck echoes the inbound Seq with the handler result. Frames sent
// without a Seq asked for no ack.
func (h *WSHandler) writeAck(conn *wsConn, in proto.Inbound, ack core.Ack) error {
	if in.Seq == 0 {
		return nil
	}
	return conn.write(proto.Outbound{
		Type: proto.OutboundTypeAck,
		Seq:  in.Seq,
		Data: ack,
	})
}

func (h *WSHandler) writeBadPayload(conn *wsConn, in proto.Inbound) error {
	return conn.write(proto.Outbound{
		Type:  proto.OutboundTypeError,
		Seq:   in.Seq,
		Error: &proto.Error{Code: "bad_payload", Msg: "malformed frame data"},
	})
}

func attachmentsFromProto(in []proto.AttachmentData) []store.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]store.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, store.Attachment{URL: a.URL, Filename: a.Filename, MimeType: a.MimeType})
	}
	return out
}
