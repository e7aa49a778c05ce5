package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubJoinSendAndLeave(t *testing.T) {
	hub := NewHub(nil)
	room := DirectRoomID("u1", "u2")

	alice := joinedClient(t, hub, "a", "u1", room)
	bob := joinedClient(t, hub, "b", "u2", room)

	sent, err := hub.Handle(alice, Command{
		Kind:    CommandSendMessage,
		Room:    room,
		Message: Message{Body: "hi", From: "spoofed"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Seq != 1 || sent.From != "u1" || sent.To != "u2" || sent.ID == "" {
		t.Fatalf("unexpected stamped message: %+v", sent)
	}

	ev := mustEvent(t, bob.Events, EventMessage)
	if ev.Message.Body != "hi" || ev.Message.Room != room || ev.Message.From != "u1" {
		t.Fatalf("unexpected message event: %+v", ev)
	}

	// The sender never gets its own message back.
	expectNoEvent(t, alice.Events)

	if _, err := hub.Handle(alice, Command{Kind: CommandLeaveRoom, Room: room}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := hub.Handle(bob, Command{Kind: CommandSendMessage, Room: room, Message: Message{Body: "anyone?"}}); err != nil {
		t.Fatalf("send after leave: %v", err)
	}
	expectNoEvent(t, alice.Events)
}

func TestHubDeliversInSendOrder(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)
	room := DirectRoomID("u1", "u2")

	alice := joinedClient(t, hub, "a", "u1", room)
	bob := NewClient("b", "u2", 256)
	hub.RegisterClient(bob)
	_, err := hub.Handle(bob, Command{Kind: CommandJoinRoom, Room: room})
	req.NoError(err)

	const n = 100
	for i := range n {
		_, err := hub.Handle(alice, Command{
			Kind:    CommandSendMessage,
			Room:    room,
			Message: Message{Body: fmt.Sprintf("m%d", i)},
		})
		req.NoError(err)
	}

	for i := range n {
		ev := mustEvent(t, bob.Events, EventMessage)
		req.Equal(fmt.Sprintf("m%d", i), ev.Message.Body)
		req.Equal(uint64(i+1), ev.Message.Seq)
	}
}

func TestHubNoBackfillForLateJoiner(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)
	room := DirectRoomID("u1", "u2")

	alice := joinedClient(t, hub, "a", "u1", room)
	_, err := hub.Handle(alice, Command{Kind: CommandSendMessage, Room: room, Message: Message{Body: "early"}})
	req.NoError(err)

	bob := joinedClient(t, hub, "b", "u2", room)
	expectNoEvent(t, bob.Events)

	_, err = hub.Handle(alice, Command{Kind: CommandSendMessage, Room: room, Message: Message{Body: "late"}})
	req.NoError(err)
	ev := mustEvent(t, bob.Events, EventMessage)
	req.Equal("late", ev.Message.Body)
}

func TestHubUnregisterRemovesMembership(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)
	room := DirectRoomID("u1", "u2")

	alice := joinedClient(t, hub, "a", "u1", room)
	bob := joinedClient(t, hub, "b", "u2", room)

	hub.UnregisterClient(bob)
	req.Equal([]*Client{alice}, hub.Registry().MembersOf(room))
	req.False(hub.Registry().Online("u2"))

	_, err := hub.Handle(alice, Command{Kind: CommandSendMessage, Room: room, Message: Message{Body: "gone?"}})
	req.NoError(err)
	expectNoEvent(t, bob.Events)

	// A closed client cannot come back into the room.
	_, err = hub.Handle(bob, Command{Kind: CommandJoinRoom, Room: room})
	req.Error(err)
	req.Equal(ErrCodeClientClosed, AsCoreError(err).Code)
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	hub := NewHub(nil)
	alice := NewClient("a", "u1", 0)
	hub.RegisterClient(alice)

	_, err := hub.Handle(alice, Command{
		Kind:    CommandSendMessage,
		Room:    DirectRoomID("u1", "u2"),
		Message: Message{Body: "hi"},
	})
	if ce := AsCoreError(err); ce == nil || ce.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %v", err)
	}
}

func TestHubJoinForeignRoomForbidden(t *testing.T) {
	hub := NewHub(nil)
	mallory := NewClient("m", "u3", 0)
	hub.RegisterClient(mallory)

	_, err := hub.Handle(mallory, Command{Kind: CommandJoinRoom, Room: DirectRoomID("u1", "u2")})
	if ce := AsCoreError(err); ce == nil || ce.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	_, err = hub.Handle(mallory, Command{Kind: CommandJoinRoom, Room: "general"})
	if ce := AsCoreError(err); ce == nil || ce.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %v", err)
	}
}

func TestHubSlowConsumerIsDropped(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)
	room := DirectRoomID("u1", "u2")

	alice := joinedClient(t, hub, "a", "u1", room)
	bob := NewClient("b", "u2", 1)
	hub.RegisterClient(bob)
	_, err := hub.Handle(bob, Command{Kind: CommandJoinRoom, Room: room})
	req.NoError(err)

	for _, body := range []string{"one", "two", "three"} {
		_, err := hub.Handle(alice, Command{Kind: CommandSendMessage, Room: room, Message: Message{Body: body}})
		req.NoError(err)
	}

	req.True(bob.Closed())
	req.Equal([]*Client{alice}, hub.Registry().MembersOf(room))

	ev := mustEvent(t, bob.Events, EventMessage)
	req.Equal("one", ev.Message.Body)
	expectNoEvent(t, bob.Events)
}
