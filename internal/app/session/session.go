// Package session owns the transient websocket sessions: their lifecycle from
// connection intent to close, their subscription masks, and serialized writes
// to the underlying transport.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kromer-network/kromer/internal/domain"
)

var (
	// ErrSessionNotFound means the id is unknown or its pending window lapsed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyConnected means a transport is already attached.
	ErrAlreadyConnected = errors.New("session already connected")
	// ErrNotConnected means the session has no transport to write to.
	ErrNotConnected = errors.New("session not connected")
)

// Conn is the transport a connected session writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// State is a session lifecycle stage.
type State int

const (
	StatePending State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client's connection-scoped state.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.RWMutex
	secretKey string // memory only
	address   string
	channels  domain.Channel
	state     State
	conn      Conn

	writeMu sync.Mutex // one writer per websocket
}

func newSession(id uuid.UUID, secretKey string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		secretKey: secretKey,
		channels:  domain.DefaultChannels,
		state:     StatePending,
	}
}

// ─── Auth ───────────────────────────────────────────────────────────────────

// Login binds an authenticated address and its key to the session.
func (s *Session) Login(address, secretKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.secretKey = secretKey
}

// Logout clears auth. The session itself stays registered.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = ""
	s.secretKey = ""
}

// Address returns the authenticated address, or "" for guests.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SecretKey returns the key the session authenticated with, or "".
func (s *Session) SecretKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secretKey
}

// IsGuest reports whether no address is bound.
func (s *Session) IsGuest() bool {
	return s.Address() == ""
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

// Channels returns the subscription mask.
func (s *Session) Channels() domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels
}

// Subscribed reports whether ch is in the mask.
func (s *Session) Subscribed(ch domain.Channel) bool {
	return s.Channels().Has(ch)
}

func (s *Session) setChannel(ch domain.Channel, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.channels |= ch
	} else {
		s.channels &^= ch
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether a transport is attached.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

func (s *Session) attach(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected:
		return ErrAlreadyConnected
	case StateClosed:
		return ErrSessionNotFound
	}
	s.conn = conn
	s.state = StateConnected
	return nil
}

// closeIfPending closes s only if no transport has attached yet. The state
// check and the transition happen under one lock, so a session being
// upgraded is never closed.
func (s *Session) closeIfPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return false
	}
	s.state = StateClosed
	s.secretKey = ""
	return true
}

func (s *Session) close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.secretKey = ""
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Send writes v as one JSON frame. Writes from the connection loop, the
// dispatcher, and the keepalive task are serialized. The context deadline, if
// any, becomes the write deadline.
func (s *Session) Send(ctx context.Context, v any) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
