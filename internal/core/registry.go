package core

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps room ids to the clients currently joined to them.
//
// The registry lock only protects the room and session indexes. Membership
// changes and dispatch for a room serialize on that room's own lock, so
// traffic in unrelated rooms never contends.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[RoomID]*Room
	sessions map[string]map[*Client]struct{} // user id -> live connections
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[RoomID]*Room),
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// Attach records a connected client for presence lookups.
func (r *Registry) Attach(c *Client) {
	user := c.UserID()
	if user == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[user]
	if !ok {
		set = make(map[*Client]struct{})
		r.sessions[user] = set
	}
	set[c] = struct{}{}
}

// Detach removes the client from the presence index and from its room.
func (r *Registry) Detach(c *Client) {
	r.Leave(c)

	user := c.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sessions[user]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.sessions, user)
		}
	}
}

// Join adds the client to room, removing it from its previous room first.
func (r *Registry) Join(room RoomID, c *Client) error {
	if c.Closed() {
		return ErrClientClosed
	}
	if current, ok := c.Room(); ok {
		if current == room {
			return nil
		}
		r.Leave(c)
	}

	for {
		target := r.getOrCreate(room)
		if target.addClient(c) {
			break
		}
		// Retired between lookup and insert; the next lookup creates a fresh room.
	}
	c.setRoom(room)

	// Close may race with Join; never leave a closed client behind.
	if c.Closed() {
		r.Leave(c)
		return ErrClientClosed
	}
	return nil
}

// Leave removes the client from whichever room contains it.
// It returns the room left, or false when the client was in none.
func (r *Registry) Leave(c *Client) (RoomID, bool) {
	current, ok := c.Room()
	if !ok {
		return "", false
	}
	c.setRoom("")

	room := r.lookup(current)
	if room == nil {
		return current, true
	}
	room.removeClient(c)
	r.retire(room)
	return current, true
}

// MembersOf returns the clients currently joined to room.
func (r *Registry) MembersOf(room RoomID) []*Client {
	target := r.lookup(room)
	if target == nil {
		return nil
	}
	return target.Members()
}

// Room returns the live room entry, or nil.
func (r *Registry) Room(room RoomID) *Room {
	return r.lookup(room)
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(user string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[user]) > 0
}

// OnlineUsers returns the users with at least one live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// Stats reports the number of active rooms and attached connections.
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connections = lo.SumBy(lo.Values(r.sessions), func(set map[*Client]struct{}) int {
		return len(set)
	})
	return len(r.rooms), connections
}

func (r *Registry) lookup(id RoomID) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

func (r *Registry) getOrCreate(id RoomID) *Room {
	if room := r.lookup(id); room != nil {
		return room
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		room = NewRoom(id)
		r.rooms[id] = room
	}
	return room
}

func (r *Registry) retire(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room.ID] != room {
		return
	}
	if room.retireIfEmpty() {
		delete(r.rooms, room.ID)
	}
}
