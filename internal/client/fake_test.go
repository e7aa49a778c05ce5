package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/dmchat/internal/proto"
)

type fakeSession struct {
	in        chan proto.Envelope
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []proto.Envelope
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		in:     make(chan proto.Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Read(ctx context.Context) (proto.Envelope, error) {
	select {
	case env := <-s.in:
		return env, nil
	case <-s.closed:
		return proto.Envelope{}, ErrSessionClosed
	case <-ctx.Done():
		return proto.Envelope{}, ctx.Err()
	}
}

func (s *fakeSession) Write(_ context.Context, env proto.Envelope) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, env)
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) frames() []proto.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Envelope, len(s.written))
	copy(out, s.written)
	return out
}

func (s *fakeSession) types() []string {
	frames := s.frames()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

// deliver pushes a server frame to the client.
func (s *fakeSession) deliver(t *testing.T, typ string, data any) {
	t.Helper()
	env, err := proto.NewEnvelope(typ, data)
	require.NoError(t, err)
	s.in <- env
}

type fakeTransport struct {
	mu       sync.Mutex
	failures int
	sessions []*fakeSession
	dials    int
}

func (t *fakeTransport) Dial(context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failures > 0 {
		t.failures--
		return nil, errors.New("connection refused")
	}
	sess := newFakeSession()
	t.sessions = append(t.sessions, sess)
	return sess, nil
}

func (t *fakeTransport) failNext(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = n
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

func (t *fakeTransport) sessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func newTestManager(t *testing.T, user string, opts Options) (*Manager, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	opts.User = user
	m, err := NewManager(transport, opts)
	require.NoError(t, err)
	m.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { _ = m.Close() })
	return m, transport
}

func recvEntry(t *testing.T, ch <-chan Entry) Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for entry")
		return Entry{}
	}
}

func expectNoEntry(t *testing.T, ch <-chan Entry) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected entry %+v", e)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
