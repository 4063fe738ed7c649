package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// Config holds session timing and fan-out settings.
type Config struct {
	Expiry        time.Duration // pending sessions older than this are dropped
	SweepInterval time.Duration // janitor tick; keepalives go out on the same tick
	SendTimeout   time.Duration // per-session write deadline for broadcasts
	FanOutLimit   int           // concurrent sends per broadcast
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Expiry:        30 * time.Second,
		SweepInterval: 10 * time.Second,
		SendTimeout:   10 * time.Second,
		FanOutLimit:   64,
	}
}

// Registry maps session ids to sessions. The map lock guards membership
// only; it is never held while writing to a transport.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	expiry time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger zerolog.Logger) *Registry {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultConfig().Expiry
	}
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		expiry:   cfg.Expiry,
		now:      time.Now,
		logger:   logger.With().Str("component", "sessions").Logger(),
	}
}

// Expiry returns the pending window.
func (r *Registry) Expiry() time.Duration {
	return r.expiry
}

// Create registers a pending session. A non-empty secretKey is stored on the
// session; authenticating it and calling Login is the caller's job.
func (r *Registry) Create(secretKey string) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s := newSession(id, secretKey, r.now())

	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SessionsActive.Set(float64(n))
	return s
}

// TryGet returns the session if it is connected or still inside its pending
// window. Expired pending sessions are reported absent before the sweep
// removes them.
func (r *Registry) TryGet(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.State() == StatePending && r.expired(s) {
		return nil, false
	}
	return s, true
}

// Connect attaches conn to a pending session, promoting it to connected.
func (r *Registry) Connect(id uuid.UUID, conn Conn) (*Session, error) {
	s, ok := r.TryGet(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := s.attach(conn); err != nil {
		return nil, err
	}
	r.logger.Debug().Str("session", id.String()).Msg("session connected")
	return s, nil
}

// Evict removes a session that is still pending. It reports whether a
// session was removed; connected sessions are left alone, including one
// whose upgrade races the eviction.
func (r *Registry) Evict(id uuid.UUID) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || !s.closeIfPending() {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SessionsActive.Set(float64(n))
	return true
}

// Remove drops a session whatever its state and closes its transport.
// Called when the transport closes.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := s.close(); err != nil {
		r.logger.Debug().Err(err).Str("session", id.String()).Msg("close transport")
	}
	observability.SessionsActive.Set(float64(n))
}

// SweepExpired removes every pending session older than the expiry window
// and returns how many were removed.
func (r *Registry) SweepExpired() int {
	expired := 0

	r.mu.Lock()
	for id, s := range r.sessions {
		if r.expired(s) && s.closeIfPending() {
			delete(r.sessions, id)
			expired++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if expired > 0 {
		observability.SessionsExpired.Add(float64(expired))
		r.logger.Debug().Int("count", expired).Msg("swept expired sessions")
	}
	observability.SessionsActive.Set(float64(n))
	return expired
}

// AllConnected returns a snapshot of the connected sessions. The slice is
// the caller's; sessions may close while it is in use.
func (r *Registry) AllConnected() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Connected() {
			out = append(out, s)
		}
	}
	return out
}

// SetSubscription sets or clears one channel bit on s.
// Unknown channel names fail with InvalidParameter "event".
func (r *Registry) SetSubscription(s *Session, add bool, channel string) error {
	ch, ok := domain.ParseChannel(channel)
	if !ok {
		return domain.ParameterError("event")
	}
	s.setChannel(ch, add)
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) expired(s *Session) bool {
	return r.now().Sub(s.CreatedAt) >= r.expiry
}
