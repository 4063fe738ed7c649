package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/domain"
)

// ─── Name Operations ────────────────────────────────────────────────────────
// Each mutation commits its audit entry together with the name row and then
// publishes TransactionCreated followed by NameChanged.

// RegisterName buys name for the owner of secretKey at the configured cost.
func (l *Ledger) RegisterName(ctx context.Context, secretKey, name string) (n *domain.Name, err error) {
	defer l.observe(&err)

	name = domain.SanitizeName(name)
	if !domain.IsValidName(name) {
		return nil, domain.ParameterError("name")
	}
	existing, err := l.store.GetName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get name: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrNameTaken
	}

	owner, err := l.authenticated(ctx, secretKey)
	if err != nil {
		return nil, err
	}
	if owner.Locked {
		return nil, domain.ErrAddressLocked
	}
	if owner.Balance.LessThan(l.cfg.NameCost) {
		return nil, domain.ErrInsufficientFunds
	}

	c, err := l.prepare(ctx, domain.Transfer{
		From:   owner.Address,
		To:     domain.SystemAddress,
		Amount: l.cfg.NameCost,
		Type:   domain.TxNamePurchase,
		Name:   &name,
	})
	if err != nil {
		return nil, err
	}
	c.Name = &domain.Name{
		Name:          name,
		Owner:         owner.Address,
		OriginalOwner: owner.Address,
		RegisteredAt:  c.Entry.Time,
		Unpaid:        decimal.Zero,
	}
	return l.commitName(ctx, c)
}

// TransferName hands name to newOwner. Transferring to the current owner is
// a no-op that returns the name unchanged.
func (l *Ledger) TransferName(ctx context.Context, secretKey, name, newOwner string) (n *domain.Name, err error) {
	defer l.observe(&err)

	name = domain.SanitizeName(name)
	if !domain.IsValidName(name) {
		return nil, domain.ParameterError("name")
	}
	if !domain.IsValidAddressWithPrefix(newOwner, l.cfg.AddressPrefix) {
		return nil, domain.ParameterError("address")
	}

	owner, n, err := l.ownedName(ctx, secretKey, name)
	if err != nil {
		return nil, err
	}
	recipient, err := l.store.GetAccount(ctx, newOwner)
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	if recipient == nil {
		return nil, domain.ErrAddressNotFound
	}
	if n.OwnedBy(recipient.Address) {
		return n, nil
	}

	c, err := l.prepare(ctx, domain.Transfer{
		From: owner.Address,
		To:   recipient.Address,
		Type: domain.TxNameTransfer,
		Name: &name,
	})
	if err != nil {
		return nil, err
	}
	now := c.Entry.Time
	n.Owner = recipient.Address
	n.TransferredAt = &now
	n.UpdatedAt = &now
	c.Name = n
	return l.commitName(ctx, c)
}

// UpdateName sets the A-record of name. A nil or empty record clears it.
func (l *Ledger) UpdateName(ctx context.Context, secretKey, name string, aRecord *string) (n *domain.Name, err error) {
	defer l.observe(&err)

	name = domain.SanitizeName(name)
	if !domain.IsValidName(name) {
		return nil, domain.ParameterError("name")
	}
	if aRecord != nil && *aRecord == "" {
		aRecord = nil
	}
	if aRecord != nil && !domain.IsValidARecord(*aRecord) {
		return nil, domain.ParameterError("a")
	}

	owner, n, err := l.ownedName(ctx, secretKey, name)
	if err != nil {
		return nil, err
	}

	c, err := l.prepare(ctx, domain.Transfer{
		From: owner.Address,
		To:   domain.SystemAddress,
		Type: domain.TxNameARecord,
		Name: &name,
	})
	if err != nil {
		return nil, err
	}
	now := c.Entry.Time
	n.Metadata = aRecord
	n.UpdatedAt = &now
	c.Name = n
	return l.commitName(ctx, c)
}

// ownedName authenticates secretKey and loads name, which it must own.
func (l *Ledger) ownedName(ctx context.Context, secretKey, name string) (*domain.Account, *domain.Name, error) {
	n, err := l.store.GetName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("get name: %w", err)
	}
	if n == nil {
		return nil, nil, domain.ErrNameNotFound
	}
	owner, err := l.authenticated(ctx, secretKey)
	if err != nil {
		return nil, nil, err
	}
	if !n.OwnedBy(owner.Address) {
		return nil, nil, domain.ErrNotNameOwner
	}
	return owner, n, nil
}

func (l *Ledger) commitName(ctx context.Context, c domain.Commit) (*domain.Name, error) {
	if err := l.commit(ctx, c); err != nil {
		return nil, err
	}
	l.events.Publish(domain.TransactionCreated(c.Entry))
	l.events.Publish(domain.NameChanged(c.Name))
	return c.Name, nil
}

// ─── Name Lookups ───────────────────────────────────────────────────────────

// Name returns name or NameNotFound.
func (l *Ledger) Name(ctx context.Context, name string) (*domain.Name, error) {
	name = domain.SanitizeName(name)
	if !domain.IsValidName(name) {
		return nil, domain.ParameterError("name")
	}
	n, err := l.store.GetName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get name: %w", err)
	}
	if n == nil {
		return nil, domain.ErrNameNotFound
	}
	return n, nil
}

// NameAvailable reports whether name is well-formed and unregistered.
func (l *Ledger) NameAvailable(ctx context.Context, name string) (bool, error) {
	name = domain.SanitizeName(name)
	if !domain.IsValidName(name) {
		return false, domain.ParameterError("name")
	}
	n, err := l.store.GetName(ctx, name)
	if err != nil {
		return false, fmt.Errorf("get name: %w", err)
	}
	return n == nil, nil
}

// Names lists the names owned by owner.
func (l *Ledger) Names(ctx context.Context, owner string) ([]domain.Name, error) {
	names, err := l.store.ListNames(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	return names, nil
}
