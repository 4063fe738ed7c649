package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ─── Janitor ────────────────────────────────────────────────────────────────
// One ticker drives both housekeeping jobs: dropping pending sessions that
// never connected, and sending a keepalive frame to every connected session.

// Keepalive is the server-initiated liveness frame.
type Keepalive struct {
	Type       string `json:"type"`
	ServerTime string `json:"server_time"`
}

// Janitor runs the periodic sweep and keepalive broadcast.
type Janitor struct {
	registry *Registry
	cfg      Config
	logger   zerolog.Logger
}

// NewJanitor creates a janitor for registry.
func NewJanitor(registry *Registry, cfg Config, logger zerolog.Logger) *Janitor {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = def.FanOutLimit
	}
	return &Janitor{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "janitor").Logger(),
	}
}

// Run ticks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Tick(ctx)
		}
	}
}

// Tick runs one sweep and one keepalive broadcast.
func (j *Janitor) Tick(ctx context.Context) {
	j.registry.SweepExpired()
	j.Broadcast(ctx, Keepalive{
		Type:       "keepalive",
		ServerTime: j.registry.now().UTC().Format(time.RFC3339),
	})
}

// Broadcast sends frame to every connected session with bounded concurrency
// and waits for all sends. Failures are logged per session.
func (j *Janitor) Broadcast(ctx context.Context, frame any) int {
	sessions := j.registry.AllConnected()

	var (
		g    errgroup.Group
		sent atomic.Int64
	)
	g.SetLimit(j.cfg.FanOutLimit)
	for _, s := range sessions {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, j.cfg.SendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, frame); err != nil {
				j.logger.Debug().Err(err).Str("session", s.ID.String()).Msg("keepalive send failed")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()

	return int(sent.Load())
}
