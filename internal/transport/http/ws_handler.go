package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/dmchat/internal/auth"
	"github.com/vovakirdan/dmchat/internal/config"
	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/proto"
	"github.com/vovakirdan/dmchat/internal/utils"
)

const (
	handshakeTimeout    = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

var errSlowConsumer = errors.New("slow consumer")

// handshakeError ends the connection after the error frame is sent.
type handshakeError struct {
	frame *proto.Error
}

func (e *handshakeError) Error() string { return e.frame.Error() }

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil when
// cfg.RequireAuth is false.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), "", h.cfg.OutboxSize)
	logger := h.log.With().Str("client_id", utils.ShortID(client.ID)).Logger()

	user, err := h.handshake(ctx, conn)
	if err != nil {
		var hsErr *handshakeError
		if errors.As(err, &hsErr) {
			logger.Debug().Str("code", hsErr.frame.Code).Msg("handshake rejected")
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			_ = wsjson.Write(writeCtx, conn, proto.Envelope{Type: proto.TypeError, Error: hsErr.frame})
			cancel()
			conn.Close(websocket.StatusPolicyViolation, hsErr.frame.Code)
			return
		}
		logger.Debug().Err(err).Msg("handshake aborted")
		return
	}

	client.SetUser(user)
	logger = logger.With().Str("user", user).Logger()
	h.hub.RegisterClient(client)
	unregister := sync.OnceFunc(func() { h.hub.UnregisterClient(client) })
	defer unregister()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.readLoop(gctx, conn, client, &logger) })
	g.Go(func() error { return h.writeLoop(gctx, conn, client, &logger) })
	err = g.Wait()

	// Membership goes first so no dispatch targets a closing socket.
	unregister()

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errSlowConsumer):
		status = websocket.StatusPolicyViolation
		reason = errSlowConsumer.Error()
		logger.Warn().Msg("ws client dropped: outbox full")
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake waits for a valid hello frame and returns the user it binds to.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return "", err
		}
		if env.Type != proto.TypeHello {
			if err := wsjson.Write(ctx, conn, proto.ErrorEnvelope(proto.CodeHelloRequired, "send hello first")); err != nil {
				return "", err
			}
			continue
		}

		var hello proto.HelloData
		if err := env.Decode(&hello); err != nil {
			return "", &handshakeError{frame: &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}}
		}
		if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
			return "", &handshakeError{frame: &proto.Error{
				Code: proto.CodeUnsupportedVersion,
				Msg:  fmt.Sprintf("server speaks protocol %d", proto.ProtocolVersion),
			}}
		}
		return h.identify(hello)
	}
}

func (h *WSHandler) identify(hello proto.HelloData) (string, error) {
	user := hello.User
	if hello.Token != "" || h.cfg.RequireAuth {
		if h.auth == nil {
			return "", &handshakeError{frame: &proto.Error{Code: proto.CodeUnauthorized, Msg: "authentication unavailable"}}
		}
		claims, err := h.auth.ValidateToken(hello.Token)
		if err != nil {
			return "", &handshakeError{frame: &proto.Error{Code: proto.CodeUnauthorized, Msg: "invalid token"}}
		}
		if user != "" && user != claims.Username {
			return "", &handshakeError{frame: &proto.Error{Code: proto.CodeUnauthorized, Msg: "token does not match user"}}
		}
		user = claims.Username
	}
	if err := core.ValidateUserID(user); err != nil {
		return "", &handshakeError{frame: &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}}
	}
	return user, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		if env.Type == proto.TypeMessage && !limiter.allow() {
			h.reject(client, &core.CoreError{Code: proto.CodeRateLimited, Message: "too many messages"})
			continue
		}

		cmd, protoErr, err := inboundToCommand(env)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			h.reject(client, &core.CoreError{Code: protoErr.Code, Message: protoErr.Msg})
			continue
		}

		if _, err := h.hub.Handle(client, *cmd); err != nil {
			ce := core.AsCoreError(err)
			logger.Debug().Str("code", ce.Code).Str("command", cmd.Kind.String()).Msg("command rejected")
			h.reject(client, ce)
		}
	}
}

// reject queues an error frame behind any pending deliveries.
func (h *WSHandler) reject(client *core.Client, ce *core.CoreError) {
	client.Deliver(&core.Event{Kind: core.EventError, Error: ce})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, event); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-client.Done():
			// Flush what was queued before the client was dropped.
			for {
				select {
				case event := <-client.Events:
					if err := h.write(ctx, conn, event); err != nil {
						return err
					}
				default:
					return errSlowConsumer
				}
			}
		case <-ping:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Msg("ws ping failed")
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, event *core.Event) error {
	env, err := outboundFromEvent(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
	defer cancel()
	return wsjson.Write(writeCtx, conn, env)
}

func (h *WSHandler) writeTimeout() time.Duration {
	if h.cfg.WriteTimeout > 0 {
		return h.cfg.WriteTimeout
	}
	return defaultWriteTimeout
}
