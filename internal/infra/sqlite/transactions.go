package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Ledger Commit ──────────────────────────────────────────────────────────

// Commit applies c in one SQL transaction. Debits that require funds are
// conditional updates: if the balance would go negative no row matches and
// the whole transaction rolls back with ErrInsufficientFunds.
func (db *DB) Commit(ctx context.Context, c domain.Commit) error {
	if c.Entry == nil {
		return fmt.Errorf("commit: missing ledger entry")
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, d := range c.Deltas {
		if err := applyDelta(ctx, tx, d); err != nil {
			return err
		}
	}

	e := c.Entry
	if e.Time.IsZero() {
		e.Time = db.now()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (from_address, to_address, amount, type, created_at, metadata, name, sent_name, sent_metaname)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullIfEmpty(e.From), e.To, domain.ToCents(e.Amount), string(e.Type), formatTime(e.Time),
		stringArg(e.Metadata), stringArg(e.Name), stringArg(e.SentName), stringArg(e.SentMetaname))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	var nameID int64
	if c.Name != nil {
		if nameID, err = saveName(ctx, tx, c.Name); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.ID = id
	if c.Name != nil {
		c.Name.ID = nameID
	}
	return nil
}

func applyDelta(ctx context.Context, tx *sql.Tx, d domain.AccountDelta) error {
	cents := domain.ToCents(d.Amount)

	var (
		res sql.Result
		err error
	)
	switch {
	case cents < 0 && d.RequireFunds:
		res, err = tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + ?, total_out = total_out - ?
			WHERE address = ? AND balance + ? >= 0
		`, cents, cents, d.Address, cents)
	case cents < 0:
		res, err = tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + ?, total_out = total_out - ?
			WHERE address = ?
		`, cents, cents, d.Address)
	default:
		res, err = tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + ?, total_in = total_in + ?
			WHERE address = ?
		`, cents, cents, d.Address)
	}
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", d.Address, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets WHERE address = ?`, d.Address).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup wallet %s: %w", d.Address, err)
	}
	if exists == 0 {
		return domain.ErrAddressNotFound
	}
	return domain.ErrInsufficientFunds
}

// ─── Transaction Lookups ────────────────────────────────────────────────────

const transactionColumns = `id, from_address, to_address, amount, type, created_at, metadata, name, sent_name, sent_metaname`

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var from, metadata, name, sentName, sentMeta sql.NullString
	var amount int64
	var typ, created string
	if err := row.Scan(&e.ID, &from, &e.To, &amount, &typ, &created, &metadata, &name, &sentName, &sentMeta); err != nil {
		return nil, err
	}
	e.From = from.String
	e.Amount = domain.FromCents(amount)
	e.Type = domain.ParseTransactionType(typ)
	e.Time = parseTime(created)
	e.Metadata = nullString(metadata)
	e.Name = nullString(name)
	e.SentName = nullString(sentName)
	e.SentMetaname = nullString(sentMeta)
	return &e, nil
}

// GetLedgerEntry retrieves a transaction by id.
// Returns (nil, nil) if not found.
func (db *DB) GetLedgerEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	e, err := scanLedgerEntry(db.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListLedgerEntries returns the newest transactions first. A non-empty address
// limits the result to entries it sent or received.
func (db *DB) ListLedgerEntries(ctx context.Context, address string, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	if address != "" {
		query += ` WHERE from_address = ? COLLATE NOCASE OR to_address = ? COLLATE NOCASE`
		args = append(args, address, address)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
