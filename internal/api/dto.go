package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Wire Shapes ────────────────────────────────────────────────────────────
// Shared by the REST surface, the websocket protocol and event frames.

// amount renders d as a JSON number with exactly two decimals.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(domain.AmountPlaces))
}

type transactionDTO struct {
	ID           int64       `json:"id"`
	From         *string     `json:"from"`
	To           string      `json:"to"`
	Value        json.Number `json:"value"`
	Time         time.Time   `json:"time"`
	Name         *string     `json:"name,omitempty"`
	Metadata     *string     `json:"metadata,omitempty"`
	SentMetaname *string     `json:"sent_metaname,omitempty"`
	SentName     *string     `json:"sent_name,omitempty"`
	Type         string      `json:"type"`
}

// newTransactionDTO renders e. Mints have no sender on the wire.
func newTransactionDTO(e *domain.LedgerEntry) transactionDTO {
	dto := transactionDTO{
		ID:           e.ID,
		To:           e.To,
		Value:        amount(e.Amount),
		Time:         e.Time.UTC(),
		Name:         e.Name,
		Metadata:     e.Metadata,
		SentMetaname: e.SentMetaname,
		SentName:     e.SentName,
		Type:         string(e.Type),
	}
	if e.From != "" && !(e.Type == domain.TxMined && domain.IsSystemAddress(e.From)) {
		from := e.From
		dto.From = &from
	}
	return dto
}

func newTransactionDTOs(entries []domain.LedgerEntry) []transactionDTO {
	out := make([]transactionDTO, len(entries))
	for i := range entries {
		out[i] = newTransactionDTO(&entries[i])
	}
	return out
}

type nameDTO struct {
	Name          string      `json:"name"`
	Owner         string      `json:"owner"`
	OriginalOwner string      `json:"original_owner,omitempty"`
	Registered    time.Time   `json:"registered"`
	Updated       *time.Time  `json:"updated,omitempty"`
	Transferred   *time.Time  `json:"transferred,omitempty"`
	A             *string     `json:"a,omitempty"`
	Unpaid        json.Number `json:"unpaid"`
}

func newNameDTO(n *domain.Name) nameDTO {
	return nameDTO{
		Name:          n.Name,
		Owner:         n.Owner,
		OriginalOwner: n.OriginalOwner,
		Registered:    n.RegisteredAt.UTC(),
		Updated:       utcPtr(n.UpdatedAt),
		Transferred:   utcPtr(n.TransferredAt),
		A:             n.Metadata,
		Unpaid:        amount(n.Unpaid),
	}
}

func newNameDTOs(names []domain.Name) []nameDTO {
	out := make([]nameDTO, len(names))
	for i := range names {
		out[i] = newNameDTO(&names[i])
	}
	return out
}

type addressDTO struct {
	Address   string      `json:"address"`
	Balance   json.Number `json:"balance"`
	TotalIn   json.Number `json:"totalin"`
	TotalOut  json.Number `json:"totalout"`
	FirstSeen time.Time   `json:"firstseen"`
	Names     *int        `json:"names,omitempty"`
}

func newAddressDTO(a *domain.Account) addressDTO {
	return addressDTO{
		Address:   a.Address,
		Balance:   amount(a.Balance),
		TotalIn:   amount(a.TotalIn),
		TotalOut:  amount(a.TotalOut),
		FirstSeen: a.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ─── Event Frames ───────────────────────────────────────────────────────────

// EventFrame renders a domain event as the frame pushed to subscribers.
func EventFrame(ev domain.Event) any {
	switch ev.Kind {
	case domain.EventTransaction:
		return map[string]interface{}{
			"type":        "event",
			"event":       "transaction",
			"transaction": newTransactionDTO(ev.Transaction),
		}
	case domain.EventName:
		return map[string]interface{}{
			"type":  "event",
			"event": "name",
			"name":  newNameDTO(ev.Name),
		}
	default:
		return map[string]interface{}{"type": "event", "event": ev.Kind.String()}
	}
}
