package events

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kromer-network/kromer/internal/app/session"
	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// ChannelFor resolves the channel an event is delivered on for a session
// bound to address. The second result is false when no channel applies.
func ChannelFor(ev domain.Event, address string) (domain.Channel, bool) {
	switch ev.Kind {
	case domain.EventTransaction:
		if ev.Transaction == nil {
			return 0, false
		}
		if ev.Transaction.Involves(address) {
			return domain.ChannelOwnTransactions, true
		}
		return domain.ChannelTransactions, true
	case domain.EventName:
		if ev.Name == nil {
			return 0, false
		}
		if address != "" && ev.Name.OwnedBy(address) {
			return domain.ChannelOwnNames, true
		}
		return domain.ChannelNames, true
	default:
		return 0, false
	}
}

// Subscribed reports whether a session holding mask and bound to address
// receives ev. A party to a transaction only receives it on ownTransactions.
func Subscribed(ev domain.Event, address string, mask domain.Channel) bool {
	ch, ok := ChannelFor(ev, address)
	return ok && mask.Has(ch)
}

// FrameFunc renders an event into the frame written to clients.
type FrameFunc func(domain.Event) any

// Sessions is the part of the registry the dispatcher reads.
type Sessions interface {
	AllConnected() []*session.Session
}

// Config tunes fan-out.
type Config struct {
	SendTimeout time.Duration
	FanOutLimit int
}

// Dispatcher drains the bus one event at a time and fans each event out to
// the subscribed sessions.
type Dispatcher struct {
	bus      *Bus
	sessions Sessions
	frame    FrameFunc
	cfg      Config
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. frame renders events for the wire.
func NewDispatcher(bus *Bus, sessions Sessions, frame FrameFunc, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = 64
	}
	return &Dispatcher{
		bus:      bus,
		sessions: sessions,
		frame:    frame,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run drains the bus until ctx is cancelled or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		ev, err := d.bus.Next(ctx)
		if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		d.Dispatch(ctx, ev)
	}
}

// Dispatch delivers ev to every connected session subscribed to its channel
// and waits for all sends. It returns the number of successful deliveries.
// A failed send is logged and counted; it never stops delivery to others.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) int {
	var (
		payload   any
		delivered atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(d.cfg.FanOutLimit)

	for _, s := range d.sessions.AllConnected() {
		if !Subscribed(ev, s.Address(), s.Channels()) {
			continue
		}
		if payload == nil {
			payload = d.frame(ev)
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().Interface("panic", r).Str("session", s.ID.String()).Msg("event send panicked")
				}
			}()

			sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, payload); err != nil {
				observability.EventDeliveries.WithLabelValues("failed").Inc()
				d.logger.Warn().Err(err).
					Str("session", s.ID.String()).
					Str("event", ev.Kind.String()).
					Msg("event delivery failed")
				return nil
			}
			observability.EventDeliveries.WithLabelValues("sent").Inc()
			delivered.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(delivered.Load())
}
