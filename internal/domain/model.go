// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture. It depends on nothing
// except the decimal type used for money.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemAddress is the distinguished account that mints supply and absorbs
// name purchase fees. It is never debited.
const SystemAddress = "serverwelf"

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is a wallet on the ledger.
type Account struct {
	ID        int64           `json:"id"`
	Address   string          `json:"address"`
	Balance   decimal.Decimal `json:"balance"`
	TotalIn   decimal.Decimal `json:"totalin"`
	TotalOut  decimal.Decimal `json:"totalout"`
	CreatedAt time.Time       `json:"firstseen"`
	Locked    bool            `json:"locked"`
	AuthHash  string          `json:"-"`
}

// IsSystem reports whether a is the system account.
func (a *Account) IsSystem() bool {
	return IsSystemAddress(a.Address)
}

// IsSystemAddress reports whether address names the system account.
func IsSystemAddress(address string) bool {
	return NormalizeAddress(address) == SystemAddress
}

// ─── Name Types ─────────────────────────────────────────────────────────────

// Name is an ownable string bound to an address.
type Name struct {
	ID            int64           `json:"-"`
	Name          string          `json:"name"`
	Owner         string          `json:"owner"`
	OriginalOwner string          `json:"original_owner,omitempty"`
	RegisteredAt  time.Time       `json:"registered"`
	UpdatedAt     *time.Time      `json:"updated,omitempty"`
	TransferredAt *time.Time      `json:"transferred,omitempty"`
	Metadata      *string         `json:"a,omitempty"`
	Unpaid        decimal.Decimal `json:"unpaid"`
}

// OwnedBy reports whether address currently owns the name.
func (n *Name) OwnedBy(address string) bool {
	return NormalizeAddress(n.Owner) == NormalizeAddress(address)
}
