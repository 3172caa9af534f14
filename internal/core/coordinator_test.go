package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCoordinator(st Storage, verifier Verifier) *Coordinator {
	logger := zerolog.Nop()
	return NewCoordinator(st, verifier, 2*time.Second, &logger)
}

func TestMessageRoundTrip(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Alice")
	st.addUser("u2", "Bob")
	st.addChannel("ch1", "general", "u1", false, "u1", "u2")

	verifier := staticVerifier{
		"tok-a": {UserID: "u1", Name: "Alice"},
		"tok-b": {UserID: "u2", Name: "Bob"},
	}
	coord := newTestCoordinator(st, verifier)

	connA := newFakeConn("c-a")
	connB := newFakeConn("c-b")
	sessA := coord.Connect(connA, "tok-a")
	sessB := coord.Connect(connB, "tok-b")

	ctx := context.Background()
	if ack := coord.JoinChannel(ctx, sessA, "ch1"); !ack.OK {
		t.Fatalf("join A failed: %s", ack.Error)
	}
	if ack := coord.JoinChannel(ctx, sessB, "ch1"); !ack.OK {
		t.Fatalf("join B failed: %s", ack.Error)
	}

	ack := coord.NewMessage(ctx, sessA, NewMessageRequest{ChannelID: "ch1", Text: "hi", ClientID: "c1"})
	if !ack.OK || ack.Message == nil {
		t.Fatalf("expected ok ack with message, got %+v", ack)
	}
	if ack.Message.ClientID != "c1" {
		t.Fatalf("ack must echo the client id, got %q", ack.Message.ClientID)
	}
	if ack.Message.ID == "" || ack.Message.ID == "c1" {
		t.Fatalf("server id must be assigned and distinct from client id, got %q", ack.Message.ID)
	}

	for _, conn := range []*fakeConn{connA, connB} {
		got := conn.sent(EventMessageReceived)
		if len(got) != 1 {
			t.Fatalf("conn %s: expected exactly one message:received, got %d", conn.ID(), len(got))
		}
		payload := got[0].Payload.(MessagePayload)
		if payload.Text != "hi" || payload.SenderID != "u1" || payload.ClientID != "c1" {
			t.Fatalf("conn %s: unexpected payload %+v", conn.ID(), payload)
		}
		if payload.SenderName != "Alice" {
			t.Fatalf("conn %s: sender name not resolved: %+v", conn.ID(), payload)
		}
	}
}

func TestNewMessageUnauthenticated(t *testing.T) {
	st := newMemStore()
	coord := newTestCoordinator(st, staticVerifier{})

	conn := newFakeConn("c-anon")
	sess := coord.Connect(conn, "")

	ack := coord.NewMessage(context.Background(), sess, NewMessageRequest{ChannelID: "ch1", Text: "hi"})
	if ack.OK || ack.Error != ErrMsgUnauthorized {
		t.Fatalf("expected unauthorized ack, got %+v", ack)
	}
	if len(conn.sent(EventMessageReceived)) != 0 {
		t.Fatal("no broadcast may occur for a rejected message")
	}
}

func TestNewMessageMissingChannel(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Alice")
	coord := newTestCoordinator(st, staticVerifier{"tok": {UserID: "u1"}})
	sess := coord.Connect(newFakeConn("c1"), "tok")

	ack := coord.NewMessage(context.Background(), sess, NewMessageRequest{Text: "hi"})
	if ack.OK || ack.Error != ErrMsgChannelRequired {
		t.Fatalf("expected channelId required, got %+v", ack)
	}
}

func TestDeleteMessageAuthorization(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Sender")
	st.addUser("u2", "Bystander")
	st.addUser("u3", "Creator")
	st.addChannel("ch1", "general", "u3", false, "u1", "u2", "u3")

	verifier := staticVerifier{
		"tok-1": {UserID: "u1"},
		"tok-2": {UserID: "u2"},
		"tok-3": {UserID: "u3"},
	}
	coord := newTestCoordinator(st, verifier)

	ctx := context.Background()
	sender := coord.Connect(newFakeConn("c1"), "tok-1")
	coord.JoinChannel(ctx, sender, "ch1")
	ack := coord.NewMessage(ctx, sender, NewMessageRequest{ChannelID: "ch1", Text: "hello"})
	if !ack.OK {
		t.Fatalf("seed message failed: %+v", ack)
	}
	msgID := ack.Message.ID

	// Neither sender nor channel creator: forbidden, message untouched.
	bystander := coord.Connect(newFakeConn("c2"), "tok-2")
	if got := coord.DeleteMessage(ctx, bystander, msgID); got.OK || got.Error != ErrMsgForbidden {
		t.Fatalf("expected forbidden, got %+v", got)
	}
	if st.deleted(msgID) {
		t.Fatal("message must remain non-deleted after forbidden attempt")
	}

	// Channel creator may delete messages sent by others.
	creator := coord.Connect(newFakeConn("c3"), "tok-3")
	if got := coord.DeleteMessage(ctx, creator, msgID); !got.OK {
		t.Fatalf("creator delete failed: %+v", got)
	}
	if !st.deleted(msgID) {
		t.Fatal("message should be soft-deleted")
	}
}

func TestEditMessageOnlySender(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Sender")
	st.addUser("u2", "Other")
	st.addChannel("ch1", "general", "u1", false, "u1", "u2")
	coord := newTestCoordinator(st, staticVerifier{
		"tok-1": {UserID: "u1"},
		"tok-2": {UserID: "u2"},
	})

	ctx := context.Background()
	sender := coord.Connect(newFakeConn("c1"), "tok-1")
	ack := coord.NewMessage(ctx, sender, NewMessageRequest{ChannelID: "ch1", Text: "original"})
	msgID := ack.Message.ID

	other := coord.Connect(newFakeConn("c2"), "tok-2")
	if got := coord.EditMessage(ctx, other, msgID, "hacked"); got.OK || got.Error != ErrMsgForbidden {
		t.Fatalf("expected forbidden for non-sender edit, got %+v", got)
	}

	got := coord.EditMessage(ctx, sender, msgID, "fixed")
	if !got.OK || got.Message == nil || got.Message.Text != "fixed" || got.Message.EditedAt == nil {
		t.Fatalf("sender edit failed: %+v", got)
	}

	if got := coord.EditMessage(ctx, sender, "missing", "x"); got.OK || got.Error != ErrMsgMessageNotFound {
		t.Fatalf("expected message not found, got %+v", got)
	}
}

func TestPresenceWithMultipleConnections(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Alice")
	coord := newTestCoordinator(st, staticVerifier{"tok": {UserID: "u1", Name: "Alice"}})

	observer := newFakeConn("obs")
	coord.Connect(observer, "") // anonymous watcher still receives broadcasts

	conn1 := newFakeConn("c1")
	conn2 := newFakeConn("c2")
	sess1 := coord.Connect(conn1, "tok")

	online := observer.sent(EventPresenceUpdate)
	if len(online) != 1 {
		t.Fatalf("expected one presence broadcast on first connection, got %d", len(online))
	}
	if p := online[0].Payload.(PresencePayload); !p.Online || p.UserID != "u1" {
		t.Fatalf("unexpected presence payload %+v", p)
	}

	sess2 := coord.Connect(conn2, "tok")
	if got := observer.sent(EventPresenceUpdate); len(got) != 1 {
		t.Fatalf("second connection must not broadcast presence, got %d events", len(got))
	}

	// First connection drops: user still online, no offline broadcast.
	coord.Disconnect(sess1)
	if got := observer.sent(EventPresenceUpdate); len(got) != 1 {
		t.Fatalf("1 of 2 connections closing must not broadcast, got %d events", len(got))
	}
	if !coord.Online("u1") {
		t.Fatal("user must still be online with one open connection")
	}

	coord.Disconnect(sess2)
	all := observer.sent(EventPresenceUpdate)
	if len(all) != 2 {
		t.Fatalf("expected offline broadcast after last disconnect, got %d events", len(all))
	}
	if p := all[1].Payload.(PresencePayload); p.Online {
		t.Fatalf("expected offline update, got %+v", p)
	}
}

func TestDisconnectLeavesAllRoomsAndStopsTyping(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Alice")
	st.addUser("u2", "Bob")
	st.addChannel("ch1", "one", "u1", false, "u1", "u2")
	st.addChannel("ch2", "two", "u1", false, "u1", "u2")
	coord := newTestCoordinator(st, staticVerifier{
		"tok-1": {UserID: "u1"},
		"tok-2": {UserID: "u2"},
	})

	ctx := context.Background()
	watcher := newFakeConn("w")
	sessW := coord.Connect(watcher, "tok-2")
	coord.JoinChannel(ctx, sessW, "ch1")
	coord.JoinChannel(ctx, sessW, "ch2")

	conn := newFakeConn("c1")
	sess := coord.Connect(conn, "tok-1")
	coord.JoinChannel(ctx, sess, "ch1")
	coord.JoinChannel(ctx, sess, "ch2")
	coord.TypingStart(sess, "ch1")

	if got := watcher.sent(EventTypingStarted); len(got) != 1 {
		t.Fatalf("expected typing:started at watcher, got %d", len(got))
	}

	coord.Disconnect(sess)

	// Typing flag cleared and announced to the room.
	if got := watcher.sent(EventTypingStopped); len(got) != 1 {
		t.Fatalf("expected typing:stopped on disconnect, got %d", len(got))
	}
	if coord.typing.active("ch1", "u1") {
		t.Fatal("typing flag must be cleared on disconnect")
	}

	// Subsequent room broadcasts never reach the closed connection.
	before := len(conn.events)
	coord.Events().ToRoom("ch1", EventMembersUpdated, ChannelPayload{ChannelID: "ch1"})
	coord.Events().ToRoom("ch2", EventMembersUpdated, ChannelPayload{ChannelID: "ch2"})
	if len(conn.events) != before {
		t.Fatal("closed connection must not receive room events")
	}
}

func TestJoinPrivateChannelRequiresMembership(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Member")
	st.addUser("u2", "Outsider")
	st.addChannel("ch1", "secret", "u1", true, "u1")
	coord := newTestCoordinator(st, staticVerifier{
		"tok-1": {UserID: "u1"},
		"tok-2": {UserID: "u2"},
	})

	ctx := context.Background()
	member := coord.Connect(newFakeConn("c1"), "tok-1")
	if ack := coord.JoinChannel(ctx, member, "ch1"); !ack.OK {
		t.Fatalf("existing member join failed: %+v", ack)
	}

	outsider := coord.Connect(newFakeConn("c2"), "tok-2")
	ack := coord.JoinChannel(ctx, outsider, "ch1")
	if ack.OK || ack.Error != ErrMsgJoinRequired {
		t.Fatalf("expected join-request refusal, got %+v", ack)
	}
	for _, connID := range coord.rooms.Connections("ch1") {
		if connID == "c2" {
			t.Fatal("refused outsider must not be subscribed")
		}
	}

	ch, _ := st.GetChannelByID(ctx, "ch1")
	if ch.HasMember("u2") {
		t.Fatal("refused outsider must not gain persisted membership")
	}
}

func TestJoinPublicChannelGrantsMembership(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Creator")
	st.addUser("u2", "Newcomer")
	st.addChannel("ch1", "open", "u1", false, "u1")
	coord := newTestCoordinator(st, staticVerifier{"tok-2": {UserID: "u2"}})

	ctx := context.Background()
	sess := coord.Connect(newFakeConn("c1"), "tok-2")
	if ack := coord.JoinChannel(ctx, sess, "ch1"); !ack.OK {
		t.Fatalf("public join failed: %+v", ack)
	}

	ch, _ := st.GetChannelByID(ctx, "ch1")
	if !ch.HasMember("u2") {
		t.Fatal("public realtime join should grant persisted membership")
	}
}

func TestToUserCountsAndSurvivesFailures(t *testing.T) {
	st := newMemStore()
	st.addUser("u1", "Alice")
	coord := newTestCoordinator(st, staticVerifier{"tok": {UserID: "u1"}})

	good := newFakeConn("c1")
	bad := newFakeConn("c2")
	bad.fail = true
	coord.Connect(good, "tok")
	coord.Connect(bad, "tok")

	n := coord.Events().ToUser("u1", EventRequestApproved, ChannelUserPayload{ChannelID: "ch1", UserID: "u1"})
	if n != 2 {
		t.Fatalf("expected 2 delivery attempts, got %d", n)
	}
	if len(good.sent(EventRequestApproved)) != 1 {
		t.Fatal("failure on one connection must not abort delivery to the others")
	}

	if n := coord.Events().ToUser("nobody", EventRequestApproved, nil); n != 0 {
		t.Fatalf("expected 0 attempts for offline user, got %d", n)
	}
}
