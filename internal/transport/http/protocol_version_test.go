package http

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/dmchat/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := srv.dial(ctx, t)
	sendFrame(ctx, t, conn, proto.TypeHello, proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})

	env := readFrame(ctx, t, conn)
	if env.Type != proto.TypeError || env.Error == nil || env.Error.Code != proto.CodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", env)
	}
}

func TestProtocolVersionOmittedIsAccepted(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := srv.dial(ctx, t)
	sendFrame(ctx, t, conn, proto.TypeHello, proto.HelloData{User: "alice"})
	barrier(ctx, t, conn)
}
