package client

import "github.com/vovakirdan/dmchat/internal/core"

// Entry is one line of the active conversation.
type Entry struct {
	// Position is the 1-based arrival index within the conversation.
	Position int
	// Local marks the optimistic echo of a message sent from this process.
	Local   bool
	Message core.Message
}

// ConversationLog holds the messages of the single active conversation in
// arrival order. It is not safe for concurrent use; Manager sequences access.
type ConversationLog struct {
	room    core.RoomID
	entries []Entry
}

// NewConversationLog returns a log with no active conversation.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{}
}

// Activate makes room the active conversation and starts an empty log for it.
func (l *ConversationLog) Activate(room core.RoomID) {
	l.room = room
	l.entries = nil
}

// Room returns the active conversation, empty when none is active.
func (l *ConversationLog) Room() core.RoomID {
	return l.room
}

// Append adds msg at the end of the log. Messages for any other room are
// dropped and reported with ok == false.
func (l *ConversationLog) Append(msg core.Message, local bool) (Entry, bool) {
	if l.room == "" || msg.Room != l.room {
		return Entry{}, false
	}
	entry := Entry{
		Position: len(l.entries) + 1,
		Local:    local,
		Message:  msg,
	}
	l.entries = append(l.entries, entry)
	return entry, true
}

// Messages returns a copy of the log.
func (l *ConversationLog) Messages() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
