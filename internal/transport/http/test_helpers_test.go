package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/dmchat/internal/auth"
	"github.com/vovakirdan/dmchat/internal/config"
	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/proto"
	"github.com/vovakirdan/dmchat/internal/store/sqlite"
)

type testServer struct {
	ts    *httptest.Server
	hub   *core.Hub
	auth  *auth.Service
	wsURL string
}

// startTestServer runs the full HTTP stack on an in-memory store.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(&disabledLogger)
	server := NewServer(hub, authService, st, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{
		ts:    ts,
		hub:   hub,
		auth:  authService,
		wsURL: strings.Replace(ts.URL, "http", "ws", 1) + "/ws",
	}
}

func (s *testServer) dial(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, s.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// connect dials, says hello as user and joins room.
func (s *testServer) connect(ctx context.Context, t *testing.T, user string, room core.RoomID) *websocket.Conn {
	t.Helper()

	conn := s.dial(ctx, t)
	sendFrame(ctx, t, conn, proto.TypeHello, proto.HelloData{User: user, Protocol: proto.ProtocolVersion})
	sendFrame(ctx, t, conn, proto.TypeJoin, proto.JoinData{RoomID: room.String()})
	return conn
}

func (s *testServer) waitMembers(t *testing.T, room core.RoomID, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(s.hub.Registry().MembersOf(room)) == n
	}, 2*time.Second, 10*time.Millisecond, "room %s never reached %d members", room, n)
}

func sendFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	env, err := proto.NewEnvelope(typ, data)
	if err != nil {
		t.Fatalf("build %s frame: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		t.Fatalf("send %s frame: %v", typ, err)
	}
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return env
}

func readMessage(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.MessageData {
	t.Helper()

	env := readFrame(ctx, t, conn)
	if env.Type != proto.TypeMessage {
		t.Fatalf("expected message frame, got %+v", env)
	}
	var msg proto.MessageData
	if err := env.Decode(&msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

// barrier sends a frame the server always rejects and waits for the error,
// proving every earlier frame on conn has been processed.
func barrier(ctx context.Context, t *testing.T, conn *websocket.Conn) {
	t.Helper()

	sendFrame(ctx, t, conn, "ping-barrier", struct{}{})
	env := readFrame(ctx, t, conn)
	if env.Type != proto.TypeError || env.Error == nil || env.Error.Code != proto.CodeInvalidMessage {
		t.Fatalf("expected barrier error, got %+v", env)
	}
}
