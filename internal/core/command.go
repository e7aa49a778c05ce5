package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage delivers a chat message to the other room participant.
	CommandSendMessage CommandKind = iota
	// CommandJoinRoom subscribes the client to a room, leaving its previous one.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from its current room.
	CommandLeaveRoom
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendMessage:
		return "message"
	case CommandJoinRoom:
		return "join"
	case CommandLeaveRoom:
		return "leave"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Room    RoomID
	Message Message
}
