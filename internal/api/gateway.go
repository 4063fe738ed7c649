package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/app/session"
	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Websocket Gateway ──────────────────────────────────────────────────────
//
// POST /api/krist/ws/start          — reserve a session, optionally logged in
// GET  /api/krist/ws/gateway/{id}   — upgrade and run the command loop

const (
	gatewayPath      = "/api/krist/ws/gateway/"
	defaultReadLimit = 64 << 10
)

// GatewayConfig configures the websocket surface.
type GatewayConfig struct {
	PublicWSURL  string        // base of advertised gateway URLs; derived from the request when empty
	ReadLimit    int64         // max inbound frame size
	WriteTimeout time.Duration // deadline for responses written by the loop
}

// Gateway owns the websocket handshake and one read loop per connection.
type Gateway struct {
	ledger   *ledger.Ledger
	registry *session.Registry
	protocol *Protocol
	hello    func() any
	cfg      GatewayConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// base is cancelled at shutdown; hijacked connections outlive request contexts.
	base context.Context
}

// NewGateway creates a gateway. hello renders the greeting sent on connect.
// Connection loops stop when base is cancelled.
func NewGateway(base context.Context, l *ledger.Ledger, registry *session.Registry, protocol *Protocol, hello func() any, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Gateway{
		ledger:   l,
		registry: registry,
		protocol: protocol,
		hello:    hello,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "gateway").Logger(),
		base:   base,
	}
}

// HandleStart reserves a pending session and returns its gateway URL.
// POST /api/krist/ws/start
func (g *Gateway) HandleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PrivateKey string `json:"privatekey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, domain.ParameterError("privatekey"))
		return
	}

	s := g.registry.Create(body.PrivateKey)
	if body.PrivateKey != "" {
		ok, acct, err := g.ledger.Authenticate(r.Context(), body.PrivateKey)
		if err == nil && !ok {
			err = domain.ErrAuthenticationFailed
		}
		if err != nil {
			g.registry.Evict(s.ID)
			writeError(w, err)
			return
		}
		s.Login(acct.Address, body.PrivateKey)
	}

	expires := int(g.registry.Expiry() / time.Second)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                 true,
		"url":                g.gatewayURL(r, s.ID),
		"expires":            expires,
		"expires_in_seconds": expires,
	})
}

func (g *Gateway) gatewayURL(r *http.Request, id uuid.UUID) string {
	base := strings.TrimSuffix(g.cfg.PublicWSURL, "/")
	if base == "" {
		scheme := "ws"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "wss"
		}
		base = scheme + "://" + r.Host
	}
	return base + gatewayPath + id.String()
}

// HandleGateway upgrades the connection of a pending session and runs its
// command loop until the peer leaves or the server shuts down.
// GET /api/krist/ws/gateway/{id}
func (g *Gateway) HandleGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.ErrInvalidWebsocket)
		return
	}
	if _, ok := g.registry.TryGet(id); !ok {
		writeError(w, domain.ErrInvalidWebsocket)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		g.logger.Debug().Err(err).Str("session", id.String()).Msg("websocket upgrade failed")
		return
	}

	s, err := g.registry.Connect(id, conn)
	if err != nil {
		g.logger.Debug().Err(err).Str("session", id.String()).Msg("session vanished before connect")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid_websocket_token"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	g.logger.Info().Str("session", id.String()).Str("address", s.Address()).Msg("websocket connected")

	g.serve(s, conn)
}

// serve runs the command loop of one connection. Frames are read and handled
// one at a time, so responses keep request order.
func (g *Gateway) serve(s *session.Session, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(g.base)
	defer cancel()
	defer func() {
		g.registry.Remove(s.ID)
		g.logger.Info().Str("session", s.ID.String()).Msg("websocket closed")
	}()

	// unblocks ReadMessage when the server shuts down
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	conn.SetReadLimit(g.cfg.ReadLimit)
	if err := g.send(ctx, s, g.hello()); err != nil {
		return
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				g.logger.Debug().Err(err).Str("session", s.ID.String()).Msg("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		resp := g.protocol.Handle(ctx, s, data)
		if err := g.send(ctx, s, resp); err != nil {
			return
		}
	}
}

func (g *Gateway) send(ctx context.Context, s *session.Session, frame any) error {
	sendCtx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	if err := s.Send(sendCtx, frame); err != nil {
		g.logger.Debug().Err(err).Str("session", s.ID.String()).Msg("websocket write failed")
		return err
	}
	return nil
}
