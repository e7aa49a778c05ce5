package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/proto"
	"github.com/vovakirdan/dmchat/internal/utils"
)

const (
	defaultSubscriptionBuffer = 32
	maxReconnectBackoff       = 30 * time.Second
)

var (
	// ErrTransportUnavailable means the server cannot be reached right now.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrNotJoined is returned when sending to a room that is not the active one.
	ErrNotJoined = errors.New("room is not active")
	// ErrEmptyBody is returned for blank messages.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrManagerClosed is returned by every operation after Close.
	ErrManagerClosed = errors.New("manager closed")
)

// State is the connection state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a Manager.
type Options struct {
	// User is the local user id; it must match the token subject when Token is set.
	User  string
	Token string

	// ReconnectAttempts bounds automatic reconnects after an unexpected loss.
	// Zero disables reconnecting.
	ReconnectAttempts int
	ReconnectBackoff  time.Duration

	Logger *zerolog.Logger
}

// Manager owns the single transport session of a chat client. It turns
// JoinRoom, LeaveRoom and Send into frames and feeds inbound deliveries for the
// active room into its ConversationLog.
//
// Every mutation happens under mu, so appends from the inbound loop and from
// Send are sequenced and the log needs no locking of its own.
type Manager struct {
	transport Transport
	opts      Options
	log       *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	session Session
	gen     uint64
	room    core.RoomID
	conv    *ConversationLog
	subs    map[uint64]*subscription
	nextSub uint64
	lastErr *proto.Error
	closed  bool
}

type subscription struct {
	room core.RoomID
	ch   chan Entry
}

// NewManager builds a disconnected manager.
func NewManager(transport Transport, opts Options) (*Manager, error) {
	if err := core.ValidateUserID(opts.User); err != nil {
		return nil, fmt.Errorf("client user: %w", err)
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("user", opts.User).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		transport: transport,
		opts:      opts,
		log:       &logger,
		ctx:       ctx,
		cancel:    cancel,
		sleep:     sleepContext,
		conv:      NewConversationLog(),
		subs:      make(map[uint64]*subscription),
	}, nil
}

// User returns the local user id.
func (m *Manager) User() string {
	return m.opts.User
}

// State reports the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s {
		m.log.Debug().Stringer("state", s).Msg("connection state changed")
	}
}

// Connect establishes the transport session. It is a no-op when already connected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.session != nil {
		return nil
	}
	return m.connectLocked(ctx)
}

// connectLocked dials, introduces the user and restores the active room.
func (m *Manager) connectLocked(ctx context.Context) error {
	m.setState(StateConnecting)

	sess, err := m.transport.Dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	hello, err := proto.NewEnvelope(proto.TypeHello, proto.HelloData{
		User:     m.opts.User,
		Token:    m.opts.Token,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		_ = sess.Close()
		m.setState(StateDisconnected)
		return err
	}
	frames := []proto.Envelope{hello}
	if m.room != "" {
		join, err := proto.NewEnvelope(proto.TypeJoin, proto.JoinData{RoomID: m.room.String()})
		if err != nil {
			_ = sess.Close()
			m.setState(StateDisconnected)
			return err
		}
		frames = append(frames, join)
	}
	for _, env := range frames {
		if err := sess.Write(ctx, env); err != nil {
			_ = sess.Close()
			m.setState(StateDisconnected)
			return fmt.Errorf("%w: send %s: %w", ErrTransportUnavailable, env.Type, err)
		}
	}

	m.session = sess
	m.gen++
	m.lastErr = nil
	m.setState(StateConnected)
	go m.readLoop(sess, m.gen)

	m.log.Info().Str("room", m.room.String()).Msg("connected")
	return nil
}

// JoinRoom makes room the active conversation: it leaves the previous room,
// joins the new one and starts an empty log for it. Joining the active room
// is a no-op.
func (m *Manager) JoinRoom(ctx context.Context, room core.RoomID) error {
	if !room.Valid() {
		return fmt.Errorf("join %q: %w", room, core.ErrBadRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.session == nil {
		return ErrTransportUnavailable
	}
	if m.room == room {
		return nil
	}

	if m.room != "" {
		if err := m.writeLocked(ctx, proto.TypeLeave, proto.JoinData{RoomID: m.room.String()}); err != nil {
			return err
		}
	}
	previous := m.room
	m.room = room
	m.conv.Activate(room)
	if err := m.writeLocked(ctx, proto.TypeJoin, proto.JoinData{RoomID: room.String()}); err != nil {
		// The join is replayed by the reconnect.
		return err
	}

	m.log.Debug().Str("room", room.String()).Str("previous", previous.String()).Msg("joined room")
	return nil
}

// LeaveRoom leaves the active room, if any, and clears the log.
func (m *Manager) LeaveRoom(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.room == "" {
		return nil
	}

	room := m.room
	m.room = ""
	m.conv.Activate("")
	if m.session == nil {
		return nil
	}
	if err := m.writeLocked(ctx, proto.TypeLeave, proto.JoinData{RoomID: room.String()}); err != nil {
		return err
	}
	m.log.Debug().Str("room", room.String()).Msg("left room")
	return nil
}

// Send emits body into room and appends it to the log right away.
func (m *Manager) Send(ctx context.Context, room core.RoomID, body string) (Entry, error) {
	if strings.TrimSpace(body) == "" {
		return Entry{}, ErrEmptyBody
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Entry{}, ErrManagerClosed
	}
	if room == "" || room != m.room {
		return Entry{}, fmt.Errorf("send to %s: %w", room, ErrNotJoined)
	}
	if m.session == nil {
		return Entry{}, ErrTransportUnavailable
	}
	peer, _ := room.Peer(m.opts.User)

	msg := core.Message{
		ID:        utils.NewID(),
		Room:      room,
		From:      m.opts.User,
		To:        peer,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := m.writeLocked(ctx, proto.TypeMessage, proto.MessageData{
		ID:       msg.ID,
		RoomID:   room.String(),
		Sender:   msg.From,
		Receiver: msg.To,
		Body:     msg.Body,
	}); err != nil {
		return Entry{}, err
	}

	entry, _ := m.conv.Append(msg, true)
	m.publishLocked(entry)
	return entry, nil
}

// ActiveRoom returns the room currently joined, empty when none.
func (m *Manager) ActiveRoom() core.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Messages returns a snapshot of the active conversation.
func (m *Manager) Messages() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv.Messages()
}

// LastError returns the last error frame received from the server since the
// session was established.
func (m *Manager) LastError() *proto.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Subscribe streams entries appended to the log of room. Entries are dropped
// for a subscriber whose buffer is full. The returned release func is
// idempotent and closes the channel.
func (m *Manager) Subscribe(room core.RoomID, buf int) (<-chan Entry, func()) {
	if buf <= 0 {
		buf = defaultSubscriptionBuffer
	}
	ch := make(chan Entry, buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = &subscription{room: room, ch: ch}

	release := sync.OnceFunc(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub.ch)
		}
	})
	return ch, release
}

// Close tears down the session and releases every subscription. The manager
// does not reconnect afterwards.
func (m *Manager) Close() error {
	// Cancel first so an in-flight dial or reconnect backoff releases mu.
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if m.session != nil {
		err = m.session.Close()
		m.session = nil
	}
	for id, sub := range m.subs {
		delete(m.subs, id)
		close(sub.ch)
	}
	m.setState(StateDisconnected)
	m.log.Info().Msg("client closed")
	return err
}

func (m *Manager) writeLocked(ctx context.Context, typ string, data any) error {
	env, err := proto.NewEnvelope(typ, data)
	if err != nil {
		return err
	}
	if err := m.session.Write(ctx, env); err != nil {
		// The read loop sees the closed session and starts reconnecting.
		_ = m.session.Close()
		return fmt.Errorf("%w: send %s: %w", ErrTransportUnavailable, typ, err)
	}
	return nil
}

func (m *Manager) publishLocked(entry Entry) {
	for _, sub := range m.subs {
		if sub.room != entry.Message.Room {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			m.log.Warn().Int("position", entry.Position).Msg("subscriber too slow, entry dropped")
		}
	}
}

func (m *Manager) readLoop(sess Session, gen uint64) {
	for {
		env, err := sess.Read(m.ctx)
		if err != nil {
			m.handleLoss(sess, gen, err)
			return
		}
		m.handleInbound(env)
	}
}

func (m *Manager) handleInbound(env proto.Envelope) {
	switch env.Type {
	case proto.TypeMessage:
		var data proto.MessageData
		if err := env.Decode(&data); err != nil {
			m.log.Warn().Err(err).Msg("malformed message frame")
			return
		}
		msg := core.Message{
			ID:   data.ID,
			Room: core.RoomID(data.RoomID),
			From: data.Sender,
			To:   data.Receiver,
			Body: data.Body,
			Seq:  data.Seq,
		}
		if data.TS != 0 {
			msg.CreatedAt = time.UnixMilli(data.TS)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		entry, ok := m.conv.Append(msg, false)
		if !ok {
			m.log.Debug().Str("room", data.RoomID).Msg("delivery for inactive room dropped")
			return
		}
		m.publishLocked(entry)
	case proto.TypeError:
		if env.Error == nil {
			return
		}
		m.mu.Lock()
		m.lastErr = env.Error
		m.mu.Unlock()
		m.log.Warn().Str("code", env.Error.Code).Str("msg", env.Error.Msg).Msg("server error")
	default:
		m.log.Debug().Str("type", env.Type).Msg("ignoring frame")
	}
}

// handleLoss runs when a session's read fails. Losses of stale sessions and
// losses caused by Close are ignored.
func (m *Manager) handleLoss(sess Session, gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	_ = sess.Close()
	m.session = nil
	m.setState(StateDisconnected)
	m.mu.Unlock()

	m.log.Warn().Err(cause).Msg("connection lost")
	m.reconnect()
}

func (m *Manager) reconnect() {
	attempts := m.opts.ReconnectAttempts
	if attempts <= 0 {
		return
	}
	backoff := m.opts.ReconnectBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := m.sleep(m.ctx, backoff); err != nil {
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if m.session != nil {
			m.mu.Unlock()
			return
		}
		err := m.connectLocked(m.ctx)
		m.mu.Unlock()

		if err == nil {
			m.log.Info().Int("attempt", attempt).Msg("reconnected")
			return
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("reconnect failed")

		backoff = min(backoff*2, maxReconnectBackoff)
	}
	m.log.Error().Int("attempts", attempts).Msg("giving up reconnecting")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
