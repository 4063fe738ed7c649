package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Internal API ───────────────────────────────────────────────────────────
// Wallet administration for trusted services. Every request must carry the
// configured key in the Authorization header.
//
// POST /api/_internal/wallet/create      — new funded wallet
// POST /api/_internal/wallet/give-money  — mint into a wallet
// POST /api/_internal/wallet/lock        — lock or unlock outgoing transfers

// InternalAPI serves /api/_internal.
type InternalAPI struct {
	ledger *ledger.Ledger
	key    string
	logger zerolog.Logger
}

func (a *InternalAPI) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"ok":      false,
				"error":   "unauthorized",
				"message": "Invalid internal key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *InternalAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := domain.AsError(err); !ok {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal request failed")
	}
	writeError(w, err)
}

// HandleCreateWallet creates a wallet with the configured initial balance.
func (a *InternalAPI) HandleCreateWallet(w http.ResponseWriter, r *http.Request) {
	key, acct, err := a.ledger.CreateWallet(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"address":    acct.Address,
		"privatekey": key,
	})
}

// HandleGiveMoney mints amount into address.
func (a *InternalAPI) HandleGiveMoney(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string           `json:"address"`
		Amount  *decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Amount == nil {
		a.fail(w, r, domain.ParameterError("amount"))
		return
	}
	if _, err := a.ledger.Mint(r.Context(), req.Address, *req.Amount); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondWallet(w, r, req.Address)
}

// HandleLock sets the locked flag of address.
func (a *InternalAPI) HandleLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		Locked  *bool  `json:"locked"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Locked == nil {
		a.fail(w, r, domain.ParameterError("locked"))
		return
	}
	if err := a.ledger.SetLocked(r.Context(), req.Address, *req.Locked); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondWallet(w, r, req.Address)
}

func (a *InternalAPI) respondWallet(w http.ResponseWriter, r *http.Request, address string) {
	acct, err := a.ledger.Account(r.Context(), address)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"wallet": newAddressDTO(acct),
	})
}
