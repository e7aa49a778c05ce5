package core

import (
	"fmt"
	"time"
)

// Dispatcher fans messages out to the other members of a room.
type Dispatcher struct {
	registry *Registry
	now      func() time.Time
}

// NewDispatcher builds a dispatcher on top of registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, now: time.Now}
}

// Dispatch delivers msg to every member of msg.Room except from.
// Members that are not joined at dispatch time never see the message.
// It returns the message as stamped by the room.
func (d *Dispatcher) Dispatch(from *Client, msg Message) (Message, error) {
	room := d.registry.Room(msg.Room)
	if room == nil {
		return msg, fmt.Errorf("dispatch to %s: %w", msg.Room, ErrNotInRoom)
	}
	stamped, ok := room.broadcast(from, msg, d.now())
	if !ok {
		return msg, fmt.Errorf("dispatch to %s: %w", msg.Room, ErrNotInRoom)
	}
	return stamped, nil
}
