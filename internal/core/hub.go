package core

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/dmchat/internal/utils"
)

// Hub is the entry point the transport layer talks to. It owns the room
// registry and the dispatcher and turns client commands into registry and
// dispatch operations.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher
	log        *zerolog.Logger
}

// NewHub creates a new chat hub instance. A nil logger disables logging.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry()
	return &Hub{
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		log:        logger,
	}
}

// Registry exposes the room registry for read-only queries.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RegisterClient makes a connected client visible for presence.
func (h *Hub) RegisterClient(c *Client) {
	h.registry.Attach(c)
	h.log.Debug().Str("client_id", c.ID).Str("user", c.UserID()).Msg("client registered")
}

// UnregisterClient closes the client and drops it from every room.
func (h *Hub) UnregisterClient(c *Client) {
	c.Close()
	room, left := c.Room()
	h.registry.Detach(c)
	ev := h.log.Debug().Str("client_id", c.ID).Str("user", c.UserID())
	if left {
		ev = ev.Str("room", room.String())
	}
	ev.Msg("client unregistered")
}

// Handle executes a client command. Errors are *CoreError values.
func (h *Hub) Handle(c *Client, cmd Command) (*Message, error) {
	switch cmd.Kind {
	case CommandJoinRoom:
		return nil, h.join(c, cmd.Room)
	case CommandLeaveRoom:
		h.leave(c, cmd.Room)
		return nil, nil
	case CommandSendMessage:
		msg, err := h.send(c, cmd.Room, cmd.Message)
		if err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, coreError(ErrCodeBadRequest, fmt.Sprintf("unknown command %d", cmd.Kind), ErrBadRequest)
	}
}

func (h *Hub) join(c *Client, room RoomID) error {
	if !room.Valid() {
		return coreError(ErrCodeBadRequest, "malformed room id", ErrBadRequest)
	}
	user := c.UserID()
	if !room.Has(user) {
		return coreError(ErrCodeForbidden, "user is not a participant of this room", nil)
	}
	if err := h.registry.Join(room, c); err != nil {
		return AsCoreError(err)
	}
	h.log.Debug().Str("client_id", c.ID).Str("user", user).Str("room", room.String()).Msg("joined room")
	return nil
}

func (h *Hub) leave(c *Client, room RoomID) {
	current, ok := c.Room()
	if !ok || (room != "" && room != current) {
		return
	}
	h.registry.Leave(c)
	h.log.Debug().Str("client_id", c.ID).Str("room", current.String()).Msg("left room")
}

func (h *Hub) send(c *Client, room RoomID, msg Message) (Message, error) {
	if msg.Body == "" {
		return msg, coreError(ErrCodeBadRequest, "message body is required", ErrBadRequest)
	}
	user := c.UserID()
	peer, ok := room.Peer(user)
	if !ok {
		return msg, coreError(ErrCodeNotInRoom, "not in room", ErrNotInRoom)
	}
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	msg.Room = room
	msg.From = user
	msg.To = peer

	stamped, err := h.dispatcher.Dispatch(c, msg)
	if err != nil {
		return msg, AsCoreError(err)
	}
	h.log.Debug().
		Str("room", room.String()).
		Str("from", user).
		Uint64("seq", stamped.Seq).
		Msg("message dispatched")
	return stamped, nil
}
