package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/store"
)

// PeerHandlers serves the peer directory used to pick a conversation.
type PeerHandlers struct {
	users    store.UserStore
	registry *core.Registry
	log      *zerolog.Logger
}

// NewPeerHandlers creates a new peer handlers instance.
func NewPeerHandlers(users store.UserStore, registry *core.Registry, logger *zerolog.Logger) *PeerHandlers {
	return &PeerHandlers{
		users:    users,
		registry: registry,
		log:      logger,
	}
}

// PeerResponse describes one conversation partner.
type PeerResponse struct {
	User   string `json:"user"`
	RoomID string `json:"roomId"`
	Online bool   `json:"online"`
}

// ListPeers returns every other registered user.
// GET /api/peers
func (h *PeerHandlers) ListPeers(c *gin.Context) {
	self := c.GetString(ContextKeyUsername)
	if self == "" {
		h.log.Error().Msg("username not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Str("user", self).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	peers := lo.FilterMap(users, func(u *store.User, _ int) (PeerResponse, bool) {
		if u.Username == self {
			return PeerResponse{}, false
		}
		return PeerResponse{
			User:   u.Username,
			RoomID: core.DirectRoomID(self, u.Username).String(),
			Online: h.registry.Online(u.Username),
		}, true
	})

	h.log.Debug().Str("user", self).Int("peer_count", len(peers)).Msg("peers listed")
	c.JSON(http.StatusOK, peers)
}
