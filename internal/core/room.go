package core

import (
	"sync"
	"time"
)

// Room groups the clients currently listening to one conversation.
// Its mutex orders membership changes and dispatches for this room only.
type Room struct {
	ID RoomID

	mu      sync.Mutex
	clients map[*Client]struct{}
	seq     uint64
	dead    bool
}

// NewRoom constructs a room with no clients.
func NewRoom(id RoomID) *Room {
	return &Room{
		ID:      id,
		clients: make(map[*Client]struct{}),
	}
}

// addClient inserts a client into the room. Returns false if the room was
// already retired by the registry and the caller must look it up again.
func (r *Room) addClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// removeClient deletes a client from the room. Returns true if removed.
func (r *Room) removeClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// retireIfEmpty marks an empty room dead. Caller holds the registry lock.
func (r *Room) retireIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) > 0 {
		return false
	}
	r.dead = true
	return true
}

// Members returns a snapshot of the live clients in the room.
func (r *Room) Members() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if !c.Closed() {
			members = append(members, c)
		}
	}
	return members
}

// broadcast stamps msg with the next sequence number and delivers it to every
// member except the sender while holding the room lock, so recipients observe
// messages in dispatch order.
func (r *Room) broadcast(from *Client, msg Message, now time.Time) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.clients[from]; !member || r.dead {
		return msg, false
	}

	r.seq++
	msg.Seq = r.seq
	msg.CreatedAt = now

	event := &Event{Kind: EventMessage, Room: r.ID, Message: msg}
	for client := range r.clients {
		if client == from {
			continue
		}
		if !client.Deliver(event) {
			// Stale or slow: the transport side unregisters it.
			delete(r.clients, client)
		}
	}
	return msg, true
}
