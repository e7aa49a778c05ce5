package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectRoomIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"Bob", "alice"},
		{"42", "7"},
		{"same", "same"},
	}
	for _, p := range pairs {
		require.Equal(t, DirectRoomID(p[0], p[1]), DirectRoomID(p[1], p[0]), "pair %v", p)
	}
}

func TestDirectRoomIDFormat(t *testing.T) {
	req := require.New(t)

	room := DirectRoomID("u2", "u1")
	req.Equal(RoomID("dm:u1:u2"), room)

	a, b, ok := room.Participants()
	req.True(ok)
	req.Equal("u1", a)
	req.Equal("u2", b)

	req.True(room.Has("u1"))
	req.True(room.Has("u2"))
	req.False(room.Has("u3"))

	peer, ok := room.Peer("u1")
	req.True(ok)
	req.Equal("u2", peer)

	_, ok = room.Peer("u3")
	req.False(ok)
}

func TestRoomIDRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "general", "dm:", "dm:u1", "dm::u2", "dm:u2:u1", "dm:a:b:c", "u1-u2"} {
		require.False(t, RoomID(raw).Valid(), "room %q", raw)
	}
}

func TestValidateUserID(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateUserID("alice"))
	req.ErrorIs(ValidateUserID(""), ErrEmptyUserID)
	req.ErrorIs(ValidateUserID("a:b"), ErrUserIDInvalid)

	long := make([]byte, maxUserIDBytes+1)
	for i := range long {
		long[i] = 'x'
	}
	req.ErrorIs(ValidateUserID(string(long)), ErrUserIDTooLong)
}
