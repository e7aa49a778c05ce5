package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/dmchat/internal/core"
)

func TestConversationLogAppendKeepsArrivalOrder(t *testing.T) {
	req := require.New(t)
	room := core.DirectRoomID("u1", "u2")

	// Given
	log := NewConversationLog()
	log.Activate(room)

	// When
	first, ok := log.Append(core.Message{Room: room, Body: "b", Seq: 9}, false)
	req.True(ok)
	second, ok := log.Append(core.Message{Room: room, Body: "a", Seq: 1}, true)
	req.True(ok)

	// Then
	req.Equal(1, first.Position)
	req.Equal(2, second.Position)
	req.True(second.Local)
	msgs := log.Messages()
	req.Len(msgs, 2)
	req.Equal("b", msgs[0].Message.Body)
	req.Equal("a", msgs[1].Message.Body)
}

func TestConversationLogActivateClears(t *testing.T) {
	req := require.New(t)
	a := core.DirectRoomID("u1", "u2")
	b := core.DirectRoomID("u1", "u3")

	log := NewConversationLog()
	log.Activate(a)
	_, ok := log.Append(core.Message{Room: a, Body: "hi"}, false)
	req.True(ok)

	log.Activate(b)

	req.Equal(b, log.Room())
	req.Empty(log.Messages())
	entry, ok := log.Append(core.Message{Room: b, Body: "new"}, false)
	req.True(ok)
	req.Equal(1, entry.Position)
}

func TestConversationLogDropsOtherRooms(t *testing.T) {
	req := require.New(t)
	active := core.DirectRoomID("u1", "u2")

	log := NewConversationLog()
	_, ok := log.Append(core.Message{Room: active, Body: "before activation"}, false)
	req.False(ok)

	log.Activate(active)
	_, ok = log.Append(core.Message{Room: core.DirectRoomID("u1", "u3"), Body: "elsewhere"}, false)
	req.False(ok)
	req.Empty(log.Messages())
}

func TestConversationLogMessagesIsCopy(t *testing.T) {
	room := core.DirectRoomID("u1", "u2")
	log := NewConversationLog()
	log.Activate(room)
	log.Append(core.Message{Room: room, Body: "original"}, false)

	msgs := log.Messages()
	msgs[0].Message.Body = "changed"

	require.Equal(t, "original", log.Messages()[0].Message.Body)
}
