package core

import "time"

// Message is the domain model for a chat message.
// Seq is the arrival position assigned by the room at dispatch time.
type Message struct {
	ID        string
	Room      RoomID
	From      string
	To        string
	Body      string
	Seq       uint64
	CreatedAt time.Time
}
