package sqlite

import (
	"context"
	"database/sql"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Wallet Operations ──────────────────────────────────────────────────────

const walletColumns = `id, address, balance, total_in, total_out, created_at, locked, auth_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var balance, totalIn, totalOut int64
	var created string
	var locked int
	if err := row.Scan(&a.ID, &a.Address, &balance, &totalIn, &totalOut, &created, &locked, &a.AuthHash); err != nil {
		return nil, err
	}
	a.Balance = domain.FromCents(balance)
	a.TotalIn = domain.FromCents(totalIn)
	a.TotalOut = domain.FromCents(totalOut)
	a.CreatedAt = parseTime(created)
	a.Locked = locked == 1
	return &a, nil
}

// GetAccount retrieves a wallet by address, ignoring case.
// Returns (nil, nil) if not found.
func (db *DB) GetAccount(ctx context.Context, address string) (*domain.Account, error) {
	a, err := scanAccount(db.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = ?`, address))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// InsertAccount creates a wallet unless the address is already taken, then
// returns the stored row.
func (db *DB) InsertAccount(ctx context.Context, acct domain.Account) (*domain.Account, error) {
	created := acct.CreatedAt
	if created.IsZero() {
		created = db.now()
	}
	balance := domain.ToCents(acct.Balance)
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO wallets (address, balance, total_in, total_out, created_at, locked, auth_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING
	`, acct.Address, balance, domain.ToCents(acct.TotalIn), domain.ToCents(acct.TotalOut),
		formatTime(created), boolInt(acct.Locked), acct.AuthHash)
	if err != nil {
		return nil, err
	}
	return db.GetAccount(ctx, acct.Address)
}

// BindAuthHash stores the auth hash of a wallet that has none yet.
// A wallet that already carries a hash is left untouched.
func (db *DB) BindAuthHash(ctx context.Context, address, hash string) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE wallets SET auth_hash = ? WHERE address = ? AND auth_hash = ''
	`, hash, address)
	return err
}

// SetLocked locks or unlocks a wallet. Locked wallets cannot send.
func (db *DB) SetLocked(ctx context.Context, address string, locked bool) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE wallets SET locked = ? WHERE address = ?
	`, boolInt(locked), address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

// Supply returns the sum of all balances outside the system account.
func (db *DB) Supply(ctx context.Context) (int64, error) {
	var cents sql.NullInt64
	err := db.db.QueryRowContext(ctx, `
		SELECT SUM(balance) FROM wallets WHERE address != ?
	`, domain.SystemAddress).Scan(&cents)
	return cents.Int64, err
}

// CountAccounts returns the number of wallets, system account included.
func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&n)
	return n, err
}
