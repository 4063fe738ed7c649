package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kromer-network/kromer/internal/api"
	"github.com/kromer-network/kromer/internal/app/events"
	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/app/session"
	"github.com/kromer-network/kromer/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// ─── Daemon ─────────────────────────────────────────────────────────────────
// Owns every long-lived component. Serve supervises the HTTP listener, the
// event dispatcher and the session janitor; the first one to fail stops the
// others.

// Daemon is a wired Kromer server.
type Daemon struct {
	cfg    Config
	logger zerolog.Logger

	db         *sqlite.DB
	bus        *events.Bus
	ledger     *ledger.Ledger
	registry   *session.Registry
	dispatcher *events.Dispatcher
	janitor    *session.Janitor
	handler    http.Handler

	// stop cancels the context websocket loops run under.
	stop context.CancelFunc
}

// New opens the database and wires the server. Connection loops end when
// ctx is cancelled or Serve returns.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabaseDir())
	if err != nil {
		return nil, err
	}

	base, stop := context.WithCancel(ctx)
	sessCfg := cfg.ToSession()

	bus := events.NewBus()
	l := ledger.New(cfg.ToLedger(), db, bus, logger)
	registry := session.NewRegistry(sessCfg, logger)

	srv := api.NewServer(l, cfg.ToAPI(), logger)
	protocol := api.NewProtocol(l, registry, cfg.Ledger.Work, logger)
	gateway := api.NewGateway(base, l, registry, protocol, srv.Hello, api.GatewayConfig{
		PublicWSURL:  cfg.API.PublicWSURL,
		WriteTimeout: sessCfg.SendTimeout,
	}, logger)
	srv.SetGateway(gateway)

	return &Daemon{
		cfg:      cfg,
		logger:   logger.With().Str("component", "daemon").Logger(),
		db:       db,
		bus:      bus,
		ledger:   l,
		registry: registry,
		dispatcher: events.NewDispatcher(bus, registry, api.EventFrame, events.Config{
			SendTimeout: sessCfg.SendTimeout,
			FanOutLimit: sessCfg.FanOutLimit,
		}, logger),
		janitor: session.NewJanitor(registry, sessCfg, logger),
		handler: srv.Handler(),
		stop:    stop,
	}, nil
}

// Handler returns the HTTP handler.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Ledger exposes the ledger for embedding callers.
func (d *Daemon) Ledger() *ledger.Ledger {
	return d.ledger
}

// Serve runs until ctx is cancelled or a component fails. The database is
// closed on return.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	defer d.db.Close()

	httpSrv := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info().Str("addr", ln.Addr().String()).Msg("kromer listening")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return d.dispatcher.Run(gctx) })
	g.Go(func() error { return d.janitor.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info().Msg("shutting down")

		d.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		d.bus.Close()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Run wires a daemon from cfg and serves on cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	d, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		d.stop()
		d.db.Close()
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	return d.Serve(ctx, ln)
}
