package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Ledger Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules.

// TransactionType represents the business reason for a ledger entry.
type TransactionType string

const (
	TxMined        TransactionType = "mined"
	TxTransfer     TransactionType = "transfer"
	TxNamePurchase TransactionType = "name_purchase"
	TxNameARecord  TransactionType = "name_a_record"
	TxNameTransfer TransactionType = "name_transfer"
	TxUnknown      TransactionType = "unknown"
)

// ParseTransactionType maps a stored type string back to a TransactionType.
// Unrecognised values become TxUnknown.
func ParseTransactionType(s string) TransactionType {
	switch t := TransactionType(s); t {
	case TxMined, TxTransfer, TxNamePurchase, TxNameARecord, TxNameTransfer:
		return t
	default:
		return TxUnknown
	}
}

// LedgerEntry is a single immutable row of the transaction log.
type LedgerEntry struct {
	ID           int64
	From         string // resolved sender; SystemAddress for mints
	To           string
	Amount       decimal.Decimal
	Type         TransactionType
	Time         time.Time
	Metadata     *string
	Name         *string // the name a name_* entry concerns
	SentName     *string
	SentMetaname *string
}

// Involves reports whether address is the sender or recipient of e.
func (e *LedgerEntry) Involves(address string) bool {
	if address == "" {
		return false
	}
	a := NormalizeAddress(address)
	return NormalizeAddress(e.From) == a || NormalizeAddress(e.To) == a
}

// Transfer describes a balance-changing operation before it is applied.
// Blank From/To resolve to the system account.
type Transfer struct {
	From         string
	To           string
	Amount       decimal.Decimal
	Type         TransactionType
	Metadata     *string
	Name         *string
	SentName     *string
	SentMetaname *string
}

// AccountDelta is one balance mutation inside a Commit.
// A negative Amount is a debit; RequireFunds makes the storage layer refuse
// the whole commit when the account balance would drop below zero.
type AccountDelta struct {
	Address      string
	Amount       decimal.Decimal
	RequireFunds bool
}

// Commit is the atomic unit handed to the store: the entry append, every
// account delta, and an optional name upsert either all apply or none do.
type Commit struct {
	Entry  *LedgerEntry
	Deltas []AccountDelta
	Name   *Name
}
