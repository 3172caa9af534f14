package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/auth"
	"github.com/vmelnik/chatrelay/internal/config"
	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/proto"
	"github.com/vmelnik/chatrelay/internal/service/channels"
	"github.com/vmelnik/chatrelay/internal/service/messages"
	"github.com/vmelnik/chatrelay/internal/store"
	"github.com/vmelnik/chatrelay/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	logger := zerolog.Nop()
	verifier := core.VerifierFunc(func(token string) (core.Identity, bool) {
		claims, err := authService.ValidateToken(token)
		if err != nil {
			return core.Identity{}, false
		}
		return core.Identity{UserID: claims.UserID, Name: claims.Name}, true
	})
	coord := core.NewCoordinator(st, verifier, time.Second, &logger)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	server := NewServer(Deps{
		Config: config.Config{
			Addr:              ":0",
			ReadHeaderTimeout: time.Second,
			AuthRateLimit:     100,
		},
		Coordinator: coord,
		Auth:        authService,
		Channels:    channels.New(st, coord.Events(), &logger),
		Messages:    messages.New(st, coord.Events(), &logger),
		Log:         &logger,
	}, stop)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService}
}

// registerUser creates an account and returns the token plus the user id
// baked into it.
func (e *testEnv) registerUser(t *testing.T, name, email string) (token, userID string) {
	t.Helper()

	token, err := e.auth.Register(context.Background(), name, email, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	claims, err := e.auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	return token, claims.UserID
}

func (e *testEnv) createChannel(t *testing.T, name, creatorID string, private bool) *store.Channel {
	t.Helper()

	ch := &store.Channel{Name: name, CreatedBy: creatorID, IsPrivate: private}
	if err := e.store.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return ch
}

func (e *testEnv) dialWS(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + e.ts.URL[len("http"):] + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type testFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, seq int64, typ string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Seq: seq, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// waitForAck reads frames until the ack with the given seq arrives. Event
// frames interleaved by broadcasts are skipped.
func waitForAck(t *testing.T, ctx context.Context, conn *websocket.Conn, seq int64) core.Ack {
	t.Helper()

	for {
		var f testFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for ack %d: %v", seq, err)
		}
		if f.Type == proto.OutboundTypeAck && f.Seq == seq {
			var ack core.Ack
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			return ack
		}
	}
}

// waitForEvent reads frames until the named event arrives and returns its
// payload.
func waitForEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	for {
		var f testFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for event %s: %v", event, err)
		}
		if f.Type == proto.OutboundTypeEvent && f.Event == event {
			return f.Data
		}
	}
}
