// Package api provides the HTTP server for Kromer.
// It exposes the Krist-compatible REST API, the websocket gateway, and the
// internal wallet administration endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

const (
	// walletVersion is reported by /walletversion; motdWalletVersion is the
	// constant clients read from the MOTD.
	walletVersion     = 14
	motdWalletVersion = 3

	packageVersion = "1.0.0"
)

// Config holds the public surface settings.
type Config struct {
	PublicURL      string
	PublicWSURL    string
	MOTD           string
	Work           int
	MetricsEnabled bool
	InternalKey    string // empty disables /api/_internal
	RequestTimeout time.Duration
}

// Server is the Kromer HTTP API server.
type Server struct {
	ledger   *ledger.Ledger
	gateway  *Gateway
	cfg      Config
	logger   zerolog.Logger
	motdSet  time.Time
	internal *InternalAPI
}

// NewServer creates a new API server.
func NewServer(l *ledger.Ledger, cfg Config, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		ledger:  l,
		cfg:     cfg,
		logger:  logger.With().Str("component", "api").Logger(),
		motdSet: time.Now().UTC(),
	}
	if cfg.InternalKey != "" {
		s.internal = &InternalAPI{ledger: l, key: cfg.InternalKey, logger: s.logger}
	}
	return s
}

// SetGateway mounts the websocket gateway under /api/krist/ws.
func (s *Server) SetGateway(g *Gateway) { s.gateway = g }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/krist", func(r chi.Router) {
		if s.gateway != nil {
			// upgraded connections must not run under a request timeout
			r.Get("/ws/gateway/{id}", s.gateway.HandleGateway)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			if s.gateway != nil {
				r.Post("/ws/start", s.gateway.HandleStart)
			}

			r.Post("/login", s.handleLogin)
			r.Post("/v2", s.handleV2)
			r.Get("/motd", s.handleMOTD)
			r.Get("/walletversion", s.handleWalletVersion)
			r.Get("/supply", s.handleSupply)

			r.Get("/addresses/{address}", s.handleAddress)
			r.Get("/addresses/{address}/names", s.handleAddressNames)
			r.Get("/addresses/{address}/transactions", s.handleAddressTransactions)

			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleMakeTransaction)
			r.Get("/transactions/{id}", s.handleTransaction)

			r.Get("/names/cost", s.handleNameCost)
			r.Get("/names/check/{name}", s.handleNameCheck)
			r.Get("/names/{name}", s.handleName)
			r.Post("/names/{name}", s.handleRegisterName)
			r.Post("/names/{name}/transfer", s.handleTransferName)
			r.Post("/names/{name}/update", s.handleUpdateName)
			r.Put("/names/{name}/update", s.handleUpdateName)
		})
	})

	if s.internal != nil {
		r.Route("/api/_internal", func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			r.Use(s.internal.authorize)
			r.Post("/wallet/create", s.internal.HandleCreateWallet)
			r.Post("/wallet/give-money", s.internal.HandleGiveMoney)
			r.Post("/wallet/lock", s.internal.HandleLock)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"ok":      false,
			"error":   "not_found",
			"message": "Route not found",
		})
	})

	return r
}

// ─── MOTD ───────────────────────────────────────────────────────────────────

// motd is the server description served by /motd and embedded in the
// websocket greeting.
func (s *Server) motd() map[string]interface{} {
	return map[string]interface{}{
		"ok":                   true,
		"server_time":          time.Now().UTC(),
		"motd":                 s.cfg.MOTD,
		"set":                  s.motdSet,
		"motd_set":             s.motdSet,
		"public_url":           s.cfg.PublicURL,
		"public_ws_url":        s.cfg.PublicWSURL,
		"mining_enabled":       false,
		"transactions_enabled": true,
		"debug_mode":           false,
		"work":                 s.cfg.Work,
		"last_block":           nil,
		"package": map[string]interface{}{
			"name":       "Kromer",
			"version":    packageVersion,
			"licence":    "GPL-3.0",
			"repository": "https://github.com/kromer-network/kromer",
		},
		"constants": map[string]interface{}{
			"wallet_version": motdWalletVersion,
			"name_cost":      amount(s.ledger.NameCost()),
			"min_work":       s.cfg.Work,
			"max_work":       s.cfg.Work,
		},
		"currency": map[string]interface{}{
			"address_prefix":  s.ledger.AddressPrefix(),
			"name_suffix":     "kro",
			"currency_name":   "Kromer",
			"currency_symbol": "KRO",
		},
	}
}

// Hello renders the greeting frame sent when a websocket connects.
func (s *Server) Hello() any {
	frame := s.motd()
	frame["type"] = "hello"
	return frame
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes err in the Krist error shape. Unexpected errors become
// internal_server_error without detail.
func writeError(w http.ResponseWriter, err error) {
	e, ok := domain.AsError(err)
	if !ok {
		e = &domain.Error{Code: domain.CodeInternal}
	}
	body := map[string]interface{}{
		"ok":      false,
		"error":   string(e.Code),
		"message": errorMessage(e),
	}
	if e.Parameter != "" {
		body["parameter"] = e.Parameter
	}
	writeJSON(w, e.Code.Status(), body)
}

// corsMiddleware adds CORS headers for browser wallets.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
