package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Name Operations ────────────────────────────────────────────────────────

const nameColumns = `id, name, owner, original_owner, registered_at, updated_at, transferred_at, metadata, unpaid`

func scanName(row rowScanner) (*domain.Name, error) {
	var n domain.Name
	var registered string
	var updated, transferred, metadata sql.NullString
	var unpaid int64
	if err := row.Scan(&n.ID, &n.Name, &n.Owner, &n.OriginalOwner, &registered, &updated, &transferred, &metadata, &unpaid); err != nil {
		return nil, err
	}
	n.RegisteredAt = parseTime(registered)
	n.UpdatedAt = nullTime(updated)
	n.TransferredAt = nullTime(transferred)
	n.Metadata = nullString(metadata)
	n.Unpaid = domain.FromCents(unpaid)
	return &n, nil
}

// GetName retrieves a name. Returns (nil, nil) if not found.
func (db *DB) GetName(ctx context.Context, name string) (*domain.Name, error) {
	n, err := scanName(db.db.QueryRowContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// CountNames returns how many names owner holds.
func (db *DB) CountNames(ctx context.Context, owner string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM names WHERE owner = ?`, owner).Scan(&n)
	return n, err
}

// ListNames returns the names owned by owner, alphabetically.
func (db *DB) ListNames(ctx context.Context, owner string) ([]domain.Name, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Name
	for rows.Next() {
		n, err := scanName(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

// saveName inserts a new name (ID == 0) or rewrites an existing one inside tx,
// returning its row id. A second registration of the same name fails with
// ErrNameTaken.
func saveName(ctx context.Context, tx *sql.Tx, n *domain.Name) (int64, error) {
	if n.ID != 0 {
		_, err := tx.ExecContext(ctx, `
			UPDATE names SET owner = ?, updated_at = ?, transferred_at = ?, metadata = ?, unpaid = ?
			WHERE id = ?
		`, n.Owner, timeArg(n.UpdatedAt), timeArg(n.TransferredAt), stringArg(n.Metadata),
			domain.ToCents(n.Unpaid), n.ID)
		if err != nil {
			return 0, fmt.Errorf("update name %s: %w", n.Name, err)
		}
		return n.ID, nil
	}

	var taken int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM names WHERE name = ?`, n.Name).Scan(&taken); err != nil {
		return 0, fmt.Errorf("lookup name %s: %w", n.Name, err)
	}
	if taken > 0 {
		return 0, domain.ErrNameTaken
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO names (name, owner, original_owner, registered_at, updated_at, transferred_at, metadata, unpaid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.Name, n.Owner, n.OriginalOwner, formatTime(n.RegisteredAt), timeArg(n.UpdatedAt),
		timeArg(n.TransferredAt), stringArg(n.Metadata), domain.ToCents(n.Unpaid))
	if err != nil {
		return 0, fmt.Errorf("insert name %s: %w", n.Name, err)
	}
	return res.LastInsertId()
}
