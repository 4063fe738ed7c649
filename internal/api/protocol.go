package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/app/session"
	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// ─── Command Protocol ───────────────────────────────────────────────────────
// One request frame in, one response frame out. Requests on a connection are
// handled strictly in order by the connection loop in gateway.go.

// request is the union of every command's fields.
type request struct {
	Type       string           `json:"type"`
	ID         int              `json:"id"`
	PrivateKey string           `json:"privatekey"`
	To         string           `json:"to"`
	Amount     *decimal.Decimal `json:"amount"`
	Metadata   *string          `json:"metadata"`
	Address    string           `json:"address"`
	FetchNames bool             `json:"fetchNames"`
	Event      string           `json:"event"`
}

// payload is the type-specific part of a successful response.
type payload map[string]interface{}

type handlerFunc func(ctx context.Context, s *session.Session, req *request) (payload, error)

// Protocol executes websocket commands against the ledger and registry.
type Protocol struct {
	ledger   *ledger.Ledger
	registry *session.Registry
	work     int
	logger   zerolog.Logger

	handlers map[string]handlerFunc
}

// NewProtocol creates a protocol handler. work is reported by the work command.
func NewProtocol(l *ledger.Ledger, registry *session.Registry, work int, logger zerolog.Logger) *Protocol {
	p := &Protocol{
		ledger:   l,
		registry: registry,
		work:     work,
		logger:   logger.With().Str("component", "protocol").Logger(),
	}
	p.handlers = map[string]handlerFunc{
		"work":                          p.handleWork,
		"make_transaction":              p.handleMakeTransaction,
		"address":                       p.handleAddress,
		"me":                            p.handleMe,
		"login":                         p.handleLogin,
		"logout":                        p.handleLogout,
		"get_subscription_level":        p.handleSubscriptionLevel,
		"get_valid_subscription_levels": p.handleValidSubscriptionLevels,
		"subscribe":                     p.handleSubscribe(true),
		"unsubscribe":                   p.handleSubscribe(false),
	}
	return p
}

// Handle decodes one raw frame, executes it for s, and returns the response
// frame. It never returns nil.
func (p *Protocol) Handle(ctx context.Context, s *session.Session, raw []byte) (resp map[string]interface{}) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		observability.ProtocolRequests.WithLabelValues("invalid", "syntax_error").Inc()
		return map[string]interface{}{
			"ok":      false,
			"type":    "error",
			"error":   "syntax_error",
			"message": "Syntax error",
		}
	}

	label := req.Type
	h, ok := p.handlers[req.Type]
	if !ok {
		label = "unknown"
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("session", s.ID.String()).
				Str("type", req.Type).
				Msg("command handler panicked")
			resp = p.failure(&req, fmt.Errorf("panic: %v", r))
			observability.ProtocolRequests.WithLabelValues(label, string(domain.CodeInternal)).Inc()
		}
	}()

	var (
		body payload
		err  error
	)
	if ok {
		body, err = h(ctx, s, &req)
	} else {
		err = domain.ParameterError("type")
	}
	if err != nil {
		resp = p.failure(&req, err)
		observability.ProtocolRequests.WithLabelValues(label, resp["error"].(string)).Inc()
		return resp
	}

	resp = map[string]interface{}{
		"ok":                 true,
		"id":                 req.ID,
		"type":               "response",
		"responding_to_type": req.Type,
	}
	for k, v := range body {
		resp[k] = v
	}
	observability.ProtocolRequests.WithLabelValues(label, "ok").Inc()
	return resp
}

// failure renders err as an error envelope. Unexpected errors are logged and
// reported to the client as internal_server_error.
func (p *Protocol) failure(req *request, err error) map[string]interface{} {
	resp := map[string]interface{}{
		"ok":                 false,
		"id":                 req.ID,
		"type":               "error",
		"responding_to_type": req.Type,
	}
	e, ok := domain.AsError(err)
	if !ok {
		p.logger.Error().Err(err).Str("type", req.Type).Msg("command failed")
		e = &domain.Error{Code: domain.CodeInternal}
	}
	resp["error"] = string(e.Code)
	resp["message"] = errorMessage(e)
	if e.Parameter != "" {
		resp["parameter"] = e.Parameter
	}
	return resp
}

// errorMessage is the human readable text of e.
func errorMessage(e *domain.Error) string {
	if e.Code == domain.CodeInvalidParameter && e.Parameter != "" {
		return "Invalid parameter " + e.Parameter
	}
	return e.Code.Message()
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (p *Protocol) handleWork(context.Context, *session.Session, *request) (payload, error) {
	return payload{"work": p.work}, nil
}

func (p *Protocol) handleMakeTransaction(ctx context.Context, s *session.Session, req *request) (payload, error) {
	key := s.SecretKey()
	if s.IsGuest() || key == "" {
		if req.PrivateKey == "" {
			return nil, domain.ParameterError("privatekey")
		}
		key = req.PrivateKey
	}
	if req.Amount == nil {
		return nil, domain.ParameterError("amount")
	}

	entry, err := p.ledger.RequestTransfer(ctx, key, req.To, *req.Amount, req.Metadata)
	if err != nil {
		return nil, err
	}
	return payload{"transaction": newTransactionDTO(entry)}, nil
}

func (p *Protocol) handleAddress(ctx context.Context, _ *session.Session, req *request) (payload, error) {
	if req.Address == "" {
		return nil, domain.ParameterError("address")
	}
	dto, err := p.address(ctx, req.Address, req.FetchNames)
	if err != nil {
		return nil, err
	}
	return payload{"address": dto}, nil
}

func (p *Protocol) handleMe(ctx context.Context, s *session.Session, _ *request) (payload, error) {
	if s.IsGuest() {
		return payload{"is_guest": true, "address": nil}, nil
	}
	dto, err := p.address(ctx, s.Address(), false)
	if err != nil {
		return nil, err
	}
	return payload{"is_guest": false, "address": dto}, nil
}

func (p *Protocol) handleLogin(ctx context.Context, s *session.Session, req *request) (payload, error) {
	if req.PrivateKey == "" {
		return nil, domain.ParameterError("privatekey")
	}
	ok, acct, err := p.ledger.Authenticate(ctx, req.PrivateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAuthenticationFailed
	}
	s.Login(acct.Address, req.PrivateKey)
	return payload{"is_guest": false, "address": newAddressDTO(acct)}, nil
}

func (p *Protocol) handleLogout(_ context.Context, s *session.Session, _ *request) (payload, error) {
	s.Logout()
	return payload{"is_guest": true, "address": nil}, nil
}

func (p *Protocol) handleSubscriptionLevel(_ context.Context, s *session.Session, _ *request) (payload, error) {
	return payload{"subscription_level": s.Channels().Names()}, nil
}

func (p *Protocol) handleValidSubscriptionLevels(context.Context, *session.Session, *request) (payload, error) {
	return payload{"valid_subscription_levels": domain.ValidChannels()}, nil
}

func (p *Protocol) handleSubscribe(add bool) handlerFunc {
	return func(_ context.Context, s *session.Session, req *request) (payload, error) {
		if req.Event == "" {
			return nil, domain.ParameterError("event")
		}
		if err := p.registry.SetSubscription(s, add, req.Event); err != nil {
			return nil, err
		}
		return payload{"subscription_level": s.Channels().Names()}, nil
	}
}

func (p *Protocol) address(ctx context.Context, address string, fetchNames bool) (addressDTO, error) {
	acct, err := p.ledger.Account(ctx, address)
	if err != nil {
		return addressDTO{}, err
	}
	dto := newAddressDTO(acct)
	if fetchNames {
		n, err := p.ledger.NameCount(ctx, acct.Address)
		if err != nil {
			return addressDTO{}, err
		}
		dto.Names = &n
	}
	return dto, nil
}
