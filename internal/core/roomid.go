package core

import (
	"errors"
	"strings"
)

const (
	directRoomPrefix = "dm:"
	roomIDSeparator  = ":"
	maxUserIDBytes   = 64
)

var (
	ErrEmptyUserID   = errors.New("user id is empty")
	ErrUserIDTooLong = errors.New("user id is too long")
	ErrUserIDInvalid = errors.New("user id must not contain ':'")
)

// RoomID identifies a two-party conversation.
type RoomID string

// DirectRoomID returns the room shared by users a and b.
// Both peers compute the same value regardless of argument order.
func DirectRoomID(a, b string) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(directRoomPrefix + a + roomIDSeparator + b)
}

// Participants splits a direct room id into its two user ids.
func (r RoomID) Participants() (a, b string, ok bool) {
	rest, found := strings.CutPrefix(string(r), directRoomPrefix)
	if !found {
		return "", "", false
	}
	a, b, found = strings.Cut(rest, roomIDSeparator)
	if !found || a == "" || b == "" || strings.Contains(b, roomIDSeparator) {
		return "", "", false
	}
	if a > b {
		return "", "", false
	}
	return a, b, true
}

// Valid reports whether r is a well-formed direct room id.
func (r RoomID) Valid() bool {
	_, _, ok := r.Participants()
	return ok
}

// Has reports whether user is one of the room participants.
func (r RoomID) Has(user string) bool {
	a, b, ok := r.Participants()
	return ok && (user == a || user == b)
}

// Peer returns the participant that is not user.
func (r RoomID) Peer(user string) (string, bool) {
	a, b, ok := r.Participants()
	switch {
	case !ok:
		return "", false
	case user == a:
		return b, true
	case user == b:
		return a, true
	default:
		return "", false
	}
}

func (r RoomID) String() string {
	return string(r)
}

// ValidateUserID checks that id can be embedded in a RoomID unambiguously.
func ValidateUserID(id string) error {
	switch {
	case id == "":
		return ErrEmptyUserID
	case len(id) > maxUserIDBytes:
		return ErrUserIDTooLong
	case strings.Contains(id, roomIDSeparator):
		return ErrUserIDInvalid
	}
	return nil
}
