package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/store"
	"github.com/vmelnik/chatrelay/internal/store/sqlite"
)

// recordingNotifier captures dispatched events instead of delivering them.
type recordingNotifier struct {
	rooms      []string
	users      []string
	broadcasts []string
	online     map[string]int
}

func (n *recordingNotifier) ToRoom(roomID, event string, payload any) {
	n.rooms = append(n.rooms, roomID+"/"+event)
}

func (n *recordingNotifier) ToUser(userID, event string, payload any) int {
	n.users = append(n.users, userID+"/"+event)
	return n.online[userID]
}

func (n *recordingNotifier) BroadcastAll(event string, payload any) {
	n.broadcasts = append(n.broadcasts, event)
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, store.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	notifier := &recordingNotifier{online: make(map[string]int)}
	logger := zerolog.Nop()
	return New(st, notifier, &logger), notifier, st
}

func seedUser(t *testing.T, st store.Store, name string) *store.User {
	t.Helper()
	u := &store.User{Name: name, Email: name + "@example.com", PasswordHash: "hash"}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestJoinRequestNotifiesCreator(t *testing.T) {
	svc, notifier, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	notifier.online[alice.ID] = 1

	ch, err := svc.Create(ctx, alice.ID, "secret", true)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	status, err := svc.RequestJoin(ctx, ch.ID, bob.ID, "bob")
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	if status != JoinStatusPending {
		t.Fatalf("expected pending, got %q", status)
	}
	if len(notifier.users) != 1 || notifier.users[0] != alice.ID+"/"+core.EventJoinRequest {
		t.Fatalf("creator not notified: %v", notifier.users)
	}

	// Repeated request stays pending without a second store write.
	status, err = svc.RequestJoin(ctx, ch.ID, bob.ID, "bob")
	if err != nil || status != JoinStatusPending {
		t.Fatalf("repeat request: status=%q err=%v", status, err)
	}

	// The creator asking to join short-circuits.
	status, err = svc.RequestJoin(ctx, ch.ID, alice.ID, "alice")
	if err != nil || status != JoinStatusAlreadyMember {
		t.Fatalf("creator request: status=%q err=%v", status, err)
	}
}

func TestApproveJoinGrantsMembership(t *testing.T) {
	svc, notifier, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	ch, _ := svc.Create(ctx, alice.ID, "secret", true)
	if _, err := svc.RequestJoin(ctx, ch.ID, bob.ID, "bob"); err != nil {
		t.Fatalf("request join: %v", err)
	}

	if err := svc.ApproveJoin(ctx, ch.ID, bob.ID, bob.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator approve should fail, got %v", err)
	}

	if err := svc.ApproveJoin(ctx, ch.ID, alice.ID, bob.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	got, err := svc.Get(ctx, ch.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if !got.HasMember(bob.ID) || got.HasPendingRequest(bob.ID) {
		t.Fatalf("approval not persisted: %+v", got)
	}

	foundApproved := false
	for _, u := range notifier.users {
		if u == bob.ID+"/"+core.EventRequestApproved {
			foundApproved = true
		}
	}
	if !foundApproved {
		t.Fatalf("requester not notified of approval: %v", notifier.users)
	}
	if len(notifier.rooms) == 0 || notifier.rooms[len(notifier.rooms)-1] != ch.ID+"/"+core.EventMembersUpdated {
		t.Fatalf("room not nudged after approval: %v", notifier.rooms)
	}
}

func TestDeleteChannelCreatorOnly(t *testing.T) {
	svc, notifier, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	ch, _ := svc.Create(ctx, alice.ID, "general", false)

	if err := svc.Delete(ctx, ch.ID, bob.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator delete should fail, got %v", err)
	}

	if err := svc.Delete(ctx, ch.ID, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, ch.ID); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("channel should be gone, got %v", err)
	}
	if len(notifier.broadcasts) == 0 || notifier.broadcasts[len(notifier.broadcasts)-1] != core.EventChannelDeleted {
		t.Fatalf("delete not broadcast: %v", notifier.broadcasts)
	}
}

func TestRemoveMemberNotifiesTarget(t *testing.T) {
	svc, notifier, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	ch, _ := svc.Create(ctx, alice.ID, "general", false)
	if err := st.AddMember(ctx, ch.ID, bob.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := svc.RemoveMember(ctx, ch.ID, alice.ID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if len(notifier.users) != 1 || notifier.users[0] != bob.ID+"/"+core.EventChannelRemoved {
		t.Fatalf("removed user not notified: %v", notifier.users)
	}

	if err := svc.RemoveMember(ctx, ch.ID, alice.ID, bob.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("removing non-member should fail, got %v", err)
	}
}
