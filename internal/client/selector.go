package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/vovakirdan/dmchat/internal/core"
)

// ErrSelfConversation is returned when selecting the local user as a peer.
var ErrSelfConversation = errors.New("cannot open a conversation with yourself")

// Peer is a conversation partner.
type Peer struct {
	User   string      `json:"user"`
	RoomID core.RoomID `json:"roomId"`
	Online bool        `json:"online"`
}

// Directory lists known peers.
type Directory interface {
	Peers(ctx context.Context) ([]Peer, error)
}

// StaticDirectory is a fixed list of user ids.
type StaticDirectory []string

func (d StaticDirectory) Peers(context.Context) ([]Peer, error) {
	return lo.Map(d, func(user string, _ int) Peer {
		return Peer{User: user}
	}), nil
}

// HTTPDirectory reads peers from the server's /api/peers endpoint.
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPDirectory builds a directory for the API at baseURL. A nil client
// uses http.DefaultClient.
func NewHTTPDirectory(baseURL, token string, client *http.Client) *HTTPDirectory {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (d *HTTPDirectory) Peers(ctx context.Context) ([]Peer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/peers", nil)
	if err != nil {
		return nil, fmt.Errorf("build peers request: %w", err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list peers: %w", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("list peers: %s: %s", resp.Status, body.Error)
	}

	var peers []Peer
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, fmt.Errorf("decode peers: %w", err)
	}
	return peers, nil
}

// Selector picks the active conversation. Selecting a peer derives the
// direct room, joins it through the Manager and swaps the delivery
// subscription to the new room.
type Selector struct {
	manager   *Manager
	directory Directory
	buffer    int

	mu      sync.Mutex
	peer    string
	room    core.RoomID
	release func()
}

// NewSelector builds a selector for the manager's user.
func NewSelector(manager *Manager, directory Directory, buffer int) *Selector {
	return &Selector{manager: manager, directory: directory, buffer: buffer}
}

// Peers lists every peer except the local user, with the room to use for each.
func (s *Selector) Peers(ctx context.Context) ([]Peer, error) {
	peers, err := s.directory.Peers(ctx)
	if err != nil {
		return nil, err
	}
	self := s.manager.User()
	return lo.FilterMap(peers, func(p Peer, _ int) (Peer, bool) {
		if p.User == self || core.ValidateUserID(p.User) != nil {
			return Peer{}, false
		}
		p.RoomID = core.DirectRoomID(self, p.User)
		return p, true
	}), nil
}

// Select makes the conversation with peer active and returns the stream of
// its entries. The previous stream is closed once the manager has switched
// rooms. If the join fails before the switch, the previous conversation
// stays active.
func (s *Selector) Select(ctx context.Context, peer string) (<-chan Entry, error) {
	if err := core.ValidateUserID(peer); err != nil {
		return nil, fmt.Errorf("select %q: %w", peer, err)
	}
	self := s.manager.User()
	if peer == self {
		return nil, ErrSelfConversation
	}
	room := core.DirectRoomID(self, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, release := s.manager.Subscribe(room, s.buffer)
	err := s.manager.JoinRoom(ctx, room)
	if err != nil && s.manager.ActiveRoom() != room {
		release()
		return nil, err
	}

	// The manager now tracks room. A failed join write is replayed on
	// reconnect, so the stream is kept alongside the error.
	s.releaseLocked()
	s.peer = peer
	s.room = room
	s.release = release
	return entries, err
}

// Active returns the selected peer and its room.
func (s *Selector) Active() (string, core.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer, s.room, s.room != ""
}

// Close releases the stream and leaves the active room.
func (s *Selector) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return nil
	}
	s.releaseLocked()
	return s.manager.LeaveRoom(ctx)
}

func (s *Selector) releaseLocked() {
	if s.release != nil {
		s.release()
	}
	s.peer = ""
	s.room = ""
	s.release = nil
}
