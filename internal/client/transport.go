package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/dmchat/internal/proto"
)

// ErrSessionClosed is returned by a Session used after Close.
var ErrSessionClosed = errors.New("session closed")

// Session is one live, bidirectional, frame-oriented connection to the server.
type Session interface {
	Read(ctx context.Context) (proto.Envelope, error)
	Write(ctx context.Context, env proto.Envelope) error
	Close() error
}

// Transport opens sessions to the chat server.
type Transport interface {
	Dial(ctx context.Context) (Session, error)
}

// WebSocketTransport dials the server's /ws endpoint.
type WebSocketTransport struct {
	url         string
	dialTimeout time.Duration
}

// NewWebSocketTransport builds a transport for url. A zero dialTimeout only
// relies on the caller's context.
func NewWebSocketTransport(url string, dialTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{url: url, dialTimeout: dialTimeout}
}

// Dial opens a websocket session.
func (t *WebSocketTransport) Dial(ctx context.Context) (Session, error) {
	if t.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return &wsSession{conn: conn}, nil
}

type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Read(ctx context.Context) (proto.Envelope, error) {
	var env proto.Envelope
	if err := wsjson.Read(ctx, s.conn, &env); err != nil {
		return proto.Envelope{}, err
	}
	return env, nil
}

func (s *wsSession) Write(ctx context.Context, env proto.Envelope) error {
	return wsjson.Write(ctx, s.conn, env)
}

func (s *wsSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
