package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, nil, path)
	req.NoError(err)
	req.Equal(path, resolved)
	req.Equal(Default(), cfg)

	_, err = os.Stat(path)
	req.NoError(err)

	// Reading the written file back yields the same values.
	again, _, err := Load(nil, nil, path)
	req.NoError(err)
	req.Equal(cfg, again)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	req.NoError(os.WriteFile(path, []byte("addr: \":9090\"\nping_interval: 5s\nclient:\n  user: alice\n"), 0o600))

	t.Setenv("DMCHAT_ADDR", ":7070")
	t.Setenv("DMCHAT_CLIENT_RECONNECT_ATTEMPTS", "2")

	cfg, _, err := Load(nil, nil, path)
	req.NoError(err)
	req.Equal(":7070", cfg.Addr)
	req.Equal(5*time.Second, cfg.PingInterval)
	req.Equal("alice", cfg.Client.User)
	req.Equal(2, cfg.Client.ReconnectAttempts)
	req.Equal(Default().OutboxSize, cfg.OutboxSize)
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", RequireAuth: true, Client: ClientConfig{User: "bob"}})

	require.Equal(t, ":1", cfg.Addr)
	require.True(t, cfg.RequireAuth)
	require.Equal(t, "bob", cfg.Client.User)
	require.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout)
}
