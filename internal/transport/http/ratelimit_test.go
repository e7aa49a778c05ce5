package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	req := require.New(t)
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(2)
	rl.now = func() time.Time { return now }

	req.True(rl.allow())
	req.True(rl.allow())
	req.False(rl.allow())

	now = now.Add(time.Minute)
	req.True(rl.allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0)
	for range 1000 {
		require.True(t, rl.allow())
	}
	var nilLimiter *rateLimiter
	require.True(t, nilLimiter.allow())
}
