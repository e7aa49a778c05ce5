package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Join_Adds_Member_Once(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	room := DirectRoomID("u1", "u2")
	c := NewClient("c1", "u1", 0)

	req.NoError(registry.Join(room, c))
	req.NoError(registry.Join(room, c))

	req.Len(registry.MembersOf(room), 1)
	current, ok := c.Room()
	req.True(ok)
	req.Equal(room, current)
}

func TestRegistry_Join_Leaves_Previous_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := DirectRoomID("u1", "u2")
	second := DirectRoomID("u1", "u3")
	c := NewClient("c1", "u1", 0)

	req.NoError(registry.Join(first, c))
	req.NoError(registry.Join(second, c))

	// Then the first room is gone entirely
	req.Empty(registry.MembersOf(first))
	req.Nil(registry.Room(first))
	req.Equal([]*Client{c}, registry.MembersOf(second))
}

func TestRegistry_Leave_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	room := DirectRoomID("u1", "u2")
	c := NewClient("c1", "u1", 0)

	_, left := registry.Leave(c)
	req.False(left)

	req.NoError(registry.Join(room, c))
	got, left := registry.Leave(c)
	req.True(left)
	req.Equal(room, got)

	_, left = registry.Leave(c)
	req.False(left)
	req.Empty(registry.MembersOf(room))
}

func TestRegistry_Rejects_Closed_Client(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	c := NewClient("c1", "u1", 0)
	c.Close()

	req.ErrorIs(registry.Join(DirectRoomID("u1", "u2"), c), ErrClientClosed)
	req.Empty(registry.MembersOf(DirectRoomID("u1", "u2")))
}

func TestRegistry_MembersOf_Skips_Closed_Clients(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	room := DirectRoomID("u1", "u2")
	a := NewClient("a", "u1", 0)
	b := NewClient("b", "u2", 0)
	req.NoError(registry.Join(room, a))
	req.NoError(registry.Join(room, b))

	b.Close()

	req.Equal([]*Client{a}, registry.MembersOf(room))
}

func TestRegistry_Presence(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := NewClient("a", "u1", 0)
	second := NewClient("b", "u1", 0)

	registry.Attach(first)
	registry.Attach(second)
	req.True(registry.Online("u1"))
	req.ElementsMatch([]string{"u1"}, registry.OnlineUsers())

	registry.Detach(first)
	req.True(registry.Online("u1"))

	registry.Detach(second)
	req.False(registry.Online("u1"))

	rooms, conns := registry.Stats()
	req.Zero(rooms)
	req.Zero(conns)
}

func TestRegistry_Concurrent_Join_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	const rooms = 16
	const perRoom = 8

	var wg sync.WaitGroup
	clients := make([]*Client, 0, rooms*perRoom)
	for r := range rooms {
		room := DirectRoomID(fmt.Sprintf("a%d", r), fmt.Sprintf("b%d", r))
		for i := range perRoom {
			c := NewClient(fmt.Sprintf("c-%d-%d", r, i), fmt.Sprintf("a%d", r), 0)
			clients = append(clients, c)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					_ = registry.Join(room, c)
					registry.Leave(c)
				}
				_ = registry.Join(room, c)
			}()
		}
	}
	wg.Wait()

	for r := range rooms {
		room := DirectRoomID(fmt.Sprintf("a%d", r), fmt.Sprintf("b%d", r))
		req.Len(registry.MembersOf(room), perRoom)
	}

	for _, c := range clients {
		registry.Leave(c)
	}
	total, _ := registry.Stats()
	req.Zero(total)
}
