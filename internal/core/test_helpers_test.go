package core

import (
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func joinedClient(t *testing.T, hub *Hub, id, user string, room RoomID) *Client {
	t.Helper()

	c := NewClient(id, user, 0)
	hub.RegisterClient(c)
	if _, err := hub.Handle(c, Command{Kind: CommandJoinRoom, Room: room}); err != nil {
		t.Fatalf("join %s: %v", room, err)
	}
	return c
}
