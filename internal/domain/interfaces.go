package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store abstracts persistent storage of wallets, names, and ledger entries.
// Lookups return (nil, nil) when the row does not exist. Address matching is
// case-insensitive.
type Store interface {
	GetAccount(ctx context.Context, address string) (*Account, error)

	// InsertAccount creates the account unless one with the same address
	// exists, and returns whichever row is stored afterwards.
	InsertAccount(ctx context.Context, acct Account) (*Account, error)

	// BindAuthHash sets the auth hash of an account that has none yet.
	BindAuthHash(ctx context.Context, address, hash string) error

	// Commit applies a ledger entry, its account deltas, and an optional name
	// upsert as one atomic unit. It assigns Entry.ID and Name.ID.
	// Returns ErrInsufficientFunds when a RequireFunds delta would overdraw.
	Commit(ctx context.Context, c Commit) error

	GetLedgerEntry(ctx context.Context, id int64) (*LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, address string, limit, offset int) ([]LedgerEntry, error)
	GetName(ctx context.Context, name string) (*Name, error)
	ListNames(ctx context.Context, owner string) ([]Name, error)
	CountNames(ctx context.Context, owner string) (int, error)

	// SetLocked returns ErrAddressNotFound for unknown addresses.
	SetLocked(ctx context.Context, address string, locked bool) error
	// Supply is the sum of every non-system balance, in cents.
	Supply(ctx context.Context) (int64, error)
}

// Publisher accepts domain events. Publish must never block.
type Publisher interface {
	Publish(ev Event)
}
