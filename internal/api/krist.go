package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Krist REST API ─────────────────────────────────────────────────────────
//
// POST /api/krist/login                         — check a private key
// POST /api/krist/v2                            — derive an address
// GET  /api/krist/motd                          — server description
// GET  /api/krist/walletversion                 — wallet version
// GET  /api/krist/supply                        — money supply
// GET  /api/krist/addresses/{address}           — wallet (?fetchNames)
// GET  /api/krist/addresses/{address}/names     — names owned
// GET  /api/krist/addresses/{address}/transactions
// GET  /api/krist/transactions                  — latest transactions
// POST /api/krist/transactions                  — make a transaction
// GET  /api/krist/transactions/{id}
// GET  /api/krist/names/cost
// GET  /api/krist/names/check/{name}
// GET  /api/krist/names/{name}
// POST /api/krist/names/{name}                  — register
// POST /api/krist/names/{name}/transfer
// POST /api/krist/names/{name}/update

// fail writes err and logs it when it is not a business failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := domain.AsError(err); !ok {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, err)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &domain.Error{Code: domain.CodeInvalidParameter, Parameter: "body", Err: err}
	}
	return nil
}

// page reads ?limit and ?offset.
func page(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b || v == ""
}

type privateKeyRequest struct {
	PrivateKey string `json:"privatekey"`
}

// ─── Misc ───────────────────────────────────────────────────────────────────

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req privateKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PrivateKey == "" {
		s.fail(w, r, domain.ParameterError("privatekey"))
		return
	}

	ok, acct, err := s.ledger.Authenticate(r.Context(), req.PrivateKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]interface{}{"ok": true, "authed": ok}
	if acct != nil {
		resp["address"] = acct.Address
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleV2(w http.ResponseWriter, r *http.Request) {
	var req privateKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PrivateKey == "" {
		s.fail(w, r, domain.ParameterError("privatekey"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"address": domain.DeriveAddress(req.PrivateKey, s.ledger.AddressPrefix()),
	})
}

func (s *Server) handleMOTD(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.motd())
}

func (s *Server) handleWalletVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"walletVersion": walletVersion,
	})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.ledger.Supply(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"money_supply": amount(supply),
	})
}

// ─── Addresses ──────────────────────────────────────────────────────────────

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Account(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dto := newAddressDTO(acct)
	if _, ok := r.URL.Query()["fetchNames"]; ok && truthy(r.URL.Query().Get("fetchNames")) {
		n, err := s.ledger.NameCount(r.Context(), acct.Address)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		dto.Names = &n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "address": dto})
}

func (s *Server) handleAddressNames(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Account(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	names, err := s.ledger.Names(r.Context(), acct.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"count": len(names),
		"total": len(names),
		"names": newNameDTOs(names),
	})
}

func (s *Server) handleAddressTransactions(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Account(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, offset := page(r)
	entries, err := s.ledger.Transactions(r.Context(), acct.Address, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"count":        len(entries),
		"transactions": newTransactionDTOs(entries),
	})
}

// ─── Transactions ───────────────────────────────────────────────────────────

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	entries, err := s.ledger.Transactions(r.Context(), "", limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"count":        len(entries),
		"transactions": newTransactionDTOs(entries),
	})
}

func (s *Server) handleMakeTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrivateKey string           `json:"privatekey"`
		To         string           `json:"to"`
		Amount     *decimal.Decimal `json:"amount"`
		Metadata   *string          `json:"metadata"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Amount == nil {
		s.fail(w, r, domain.ParameterError("amount"))
		return
	}

	entry, err := s.ledger.RequestTransfer(r.Context(), req.PrivateKey, req.To, *req.Amount, req.Metadata)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"transaction": newTransactionDTO(entry),
	})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.fail(w, r, domain.ParameterError("id"))
		return
	}
	entry, err := s.ledger.Transaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"transaction": newTransactionDTO(entry),
	})
}

// ─── Names ──────────────────────────────────────────────────────────────────

func (s *Server) handleNameCost(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"name_cost": amount(s.ledger.NameCost()),
	})
}

func (s *Server) handleNameCheck(w http.ResponseWriter, r *http.Request) {
	available, err := s.ledger.NameAvailable(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "available": available})
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.Name(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "name": newNameDTO(n)})
}

func (s *Server) handleRegisterName(w http.ResponseWriter, r *http.Request) {
	var req privateKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.ledger.RegisterName(r.Context(), req.PrivateKey, chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "name": newNameDTO(n)})
}

func (s *Server) handleTransferName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrivateKey string `json:"privatekey"`
		Address    string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.ledger.TransferName(r.Context(), req.PrivateKey, chi.URLParam(r, "name"), req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "name": newNameDTO(n)})
}

func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrivateKey string  `json:"privatekey"`
		A          *string `json:"a"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.ledger.UpdateName(r.Context(), req.PrivateKey, chi.URLParam(r, "name"), req.A)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "name": newNameDTO(n)})
}
