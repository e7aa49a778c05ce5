package http

import (
	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/proto"
)

// inboundToCommand maps a client frame to a core command. A non-nil
// *proto.Error is answered to the client; a non-nil error closes the connection.
func inboundToCommand(env proto.Envelope) (*core.Command, *proto.Error, error) {
	switch env.Type {
	case proto.TypeJoin, proto.TypeLeave:
		var join proto.JoinData
		if err := env.Decode(&join); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}, nil
		}
		kind := core.CommandJoinRoom
		if env.Type == proto.TypeLeave {
			kind = core.CommandLeaveRoom
		}
		if join.RoomID == "" && kind == core.CommandJoinRoom {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{Kind: kind, Room: core.RoomID(join.RoomID)}, nil, nil
	case proto.TypeMessage:
		var msg proto.MessageData
		if err := env.Decode(&msg); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}, nil
		}
		if msg.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		// Sender and receiver are derived from the connection and the room.
		return &core.Command{
			Kind: core.CommandSendMessage,
			Room: core.RoomID(msg.RoomID),
			Message: core.Message{
				ID:   msg.ID,
				Body: msg.Body,
			},
		}, nil, nil
	case proto.TypeHello:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already introduced"}, nil
	default:
		return nil, &proto.Error{Code: proto.CodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func messageData(msg core.Message) proto.MessageData {
	return proto.MessageData{
		ID:       msg.ID,
		RoomID:   msg.Room.String(),
		Sender:   msg.From,
		Receiver: msg.To,
		Body:     msg.Body,
		Seq:      msg.Seq,
		TS:       msg.CreatedAt.UnixMilli(),
	}
}

func outboundFromEvent(event *core.Event) (proto.Envelope, error) {
	switch event.Kind {
	case core.EventMessage:
		return proto.NewEnvelope(proto.TypeMessage, messageData(event.Message))
	case core.EventError:
		if event.Error == nil {
			return proto.ErrorEnvelope("unknown", "unknown error"), nil
		}
		return proto.ErrorEnvelope(event.Error.Code, event.Error.Message), nil
	default:
		return proto.ErrorEnvelope(core.ErrCodeInternal, "unsupported event"), nil
	}
}
