// Package ledger is the authoritative transaction processor: authentication,
// transfers between wallets, name purchases and mutations, and minting from
// the system account.
//
// Every balance change goes to the store as one domain.Commit, so the debit,
// the credit, the log entry and any name mutation land together or not at all.
// Events are published only after the commit succeeds.
package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

const (
	// keyLength and keyCharset shape generated wallet keys.
	keyLength  = 32
	keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

	// maxKeyAttempts caps wallet key generation. One attempt succeeds in
	// practice; hitting the cap means key generation or the store is broken.
	maxKeyAttempts = 8

	maxMetadataLen = 255
)

// Config holds ledger economics.
type Config struct {
	AddressPrefix  string
	NameCost       decimal.Decimal
	InitialBalance decimal.Decimal
	Rounding       domain.Rounding
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AddressPrefix:  domain.DefaultAddressPrefix,
		NameCost:       decimal.NewFromInt(500),
		InitialBalance: decimal.NewFromInt(100),
		Rounding:       domain.DefaultRounding,
	}
}

// Ledger applies balance-changing operations against a store.
type Ledger struct {
	store  domain.Store
	events domain.Publisher
	cfg    Config
	logger zerolog.Logger

	now    func() time.Time
	newKey func() (string, error)
}

// New creates a ledger. events receives TransactionCreated and NameChanged.
func New(cfg Config, store domain.Store, events domain.Publisher, logger zerolog.Logger) *Ledger {
	if cfg.AddressPrefix == "" {
		cfg.AddressPrefix = domain.DefaultAddressPrefix
	}
	if cfg.Rounding == "" {
		cfg.Rounding = domain.DefaultRounding
	}
	return &Ledger{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    time.Now,
		newKey: randomKey,
	}
}

// NameCost returns the price of registering a name.
func (l *Ledger) NameCost() decimal.Decimal {
	return l.cfg.NameCost
}

// AddressPrefix returns the prefix of derived addresses.
func (l *Ledger) AddressPrefix() string {
	return l.cfg.AddressPrefix
}

// ─── Authentication ─────────────────────────────────────────────────────────

// Authenticate derives the address of secretKey, creating the wallet on first
// sight, and reports whether the key matches the stored auth hash. The
// account is returned even when authentication fails.
func (l *Ledger) Authenticate(ctx context.Context, secretKey string) (bool, *domain.Account, error) {
	if secretKey == "" {
		return false, nil, domain.ParameterError("privatekey")
	}
	address := domain.DeriveAddress(secretKey, l.cfg.AddressPrefix)
	hash := domain.DeriveAuthHash(address, secretKey)

	acct, err := l.store.GetAccount(ctx, address)
	if err != nil {
		return false, nil, fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		acct, err = l.store.InsertAccount(ctx, domain.Account{
			Address:   address,
			CreatedAt: l.now(),
			AuthHash:  hash,
		})
		if err != nil {
			return false, nil, fmt.Errorf("insert account: %w", err)
		}
		if acct.AuthHash == hash {
			observability.WalletsCreated.Inc()
			l.logger.Info().Str("address", acct.Address).Msg("wallet created")
		}
	}
	if acct.IsSystem() {
		return false, acct, nil
	}

	if acct.AuthHash == "" {
		if err := l.store.BindAuthHash(ctx, acct.Address, hash); err != nil {
			return false, nil, fmt.Errorf("bind auth hash: %w", err)
		}
		if acct, err = l.store.GetAccount(ctx, address); err != nil {
			return false, nil, fmt.Errorf("get account: %w", err)
		}
	}
	return acct.AuthHash == hash, acct, nil
}

// authenticated returns the account of secretKey or AuthenticationFailed.
func (l *Ledger) authenticated(ctx context.Context, secretKey string) (*domain.Account, error) {
	ok, acct, err := l.Authenticate(ctx, secretKey)
	if err != nil {
		if e, isDomain := domain.AsError(err); isDomain && e.Code == domain.CodeInvalidParameter {
			return nil, domain.ErrAuthenticationFailed
		}
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAuthenticationFailed
	}
	return acct, nil
}

// ─── Transfers ──────────────────────────────────────────────────────────────

// ApplyTransfer moves t.Amount from t.From to t.To and appends the ledger
// entry. Blank parties resolve to the system account, which is never
// debited. A non-system sender cannot go below zero.
func (l *Ledger) ApplyTransfer(ctx context.Context, t domain.Transfer) (entry *domain.LedgerEntry, err error) {
	defer l.observe(&err)
	return l.applyTransfer(ctx, t)
}

func (l *Ledger) applyTransfer(ctx context.Context, t domain.Transfer) (*domain.LedgerEntry, error) {
	c, err := l.prepare(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := l.commit(ctx, c); err != nil {
		return nil, err
	}
	l.events.Publish(domain.TransactionCreated(c.Entry))
	return c.Entry, nil
}

// prepare validates t and builds its commit without touching balances.
func (l *Ledger) prepare(ctx context.Context, t domain.Transfer) (domain.Commit, error) {
	amount := l.cfg.Rounding.Apply(t.Amount)
	if amount.IsNegative() {
		return domain.Commit{}, domain.ErrInvalidAmount
	}
	if t.Type == domain.TxTransfer && (!t.Amount.IsPositive() || !amount.IsPositive()) {
		return domain.Commit{}, domain.ErrInvalidAmount
	}

	from, to := t.From, t.To
	if isBlank(from) {
		from = domain.SystemAddress
	}
	if isBlank(to) {
		to = domain.SystemAddress
	}

	sender, err := l.store.GetAccount(ctx, from)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("get sender: %w", err)
	}
	recipient, err := l.store.GetAccount(ctx, to)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("get recipient: %w", err)
	}
	if sender == nil || recipient == nil {
		return domain.Commit{}, domain.ErrAddressNotFound
	}

	entry := &domain.LedgerEntry{
		From:         sender.Address,
		To:           recipient.Address,
		Amount:       amount,
		Type:         t.Type,
		Time:         l.now(),
		Metadata:     t.Metadata,
		Name:         t.Name,
		SentName:     t.SentName,
		SentMetaname: t.SentMetaname,
	}

	var deltas []domain.AccountDelta
	if !amount.IsZero() {
		if !sender.IsSystem() {
			deltas = append(deltas, domain.AccountDelta{
				Address:      sender.Address,
				Amount:       amount.Neg(),
				RequireFunds: true,
			})
		}
		deltas = append(deltas, domain.AccountDelta{Address: recipient.Address, Amount: amount})
	}
	return domain.Commit{Entry: entry, Deltas: deltas}, nil
}

// RequestTransfer is the client entry point: it authenticates secretKey,
// resolves to (an address or a meta-name), and sends amount.
func (l *Ledger) RequestTransfer(ctx context.Context, secretKey, to string, amount decimal.Decimal, metadata *string) (entry *domain.LedgerEntry, err error) {
	defer l.observe(&err)

	if isBlank(to) {
		return nil, domain.ParameterError("to")
	}
	if metadata != nil && len(*metadata) > maxMetadataLen {
		return nil, domain.ParameterError("metadata")
	}

	sender, err := l.authenticated(ctx, secretKey)
	if err != nil {
		return nil, err
	}
	if sender.Locked {
		return nil, domain.ErrAddressLocked
	}

	rounded := l.cfg.Rounding.Apply(amount)
	if !amount.IsPositive() || !rounded.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if rounded.GreaterThan(sender.Balance) {
		return nil, domain.ErrInsufficientFunds
	}

	t := domain.Transfer{
		From:     sender.Address,
		Amount:   rounded,
		Type:     domain.TxTransfer,
		Metadata: metadata,
	}
	if meta, ok := domain.ParseMetaNameWithPrefix(to, l.cfg.AddressPrefix); ok {
		name, err := l.store.GetName(ctx, meta.Name)
		if err != nil {
			return nil, fmt.Errorf("get name: %w", err)
		}
		if name == nil {
			return nil, domain.ErrNameNotFound
		}
		t.To = name.Owner
		t.SentName = &meta.Name
		if meta.Label != "" {
			t.SentMetaname = &meta.Label
		}
	} else {
		if !domain.IsValidAddressWithPrefix(to, l.cfg.AddressPrefix) {
			return nil, domain.ParameterError("to")
		}
		t.To = to
	}

	if domain.NormalizeAddress(t.To) == domain.NormalizeAddress(sender.Address) {
		return nil, domain.ErrSameWalletTransfer
	}
	return l.applyTransfer(ctx, t)
}

// Mint credits amount to address from the system account.
func (l *Ledger) Mint(ctx context.Context, address string, amount decimal.Decimal) (entry *domain.LedgerEntry, err error) {
	defer l.observe(&err)

	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if isBlank(address) || domain.IsSystemAddress(address) {
		return nil, domain.ParameterError("address")
	}
	return l.applyTransfer(ctx, domain.Transfer{
		From:   domain.SystemAddress,
		To:     address,
		Amount: amount,
		Type:   domain.TxMined,
	})
}

// ─── Wallet Creation ────────────────────────────────────────────────────────

// CreateWallet generates a fresh key, creates its wallet, and credits the
// configured initial balance. It returns the key and the funded account.
func (l *Ledger) CreateWallet(ctx context.Context) (key string, acct *domain.Account, err error) {
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err = l.newKey()
		if err != nil {
			return "", nil, fmt.Errorf("generate key: %w", err)
		}

		address := domain.DeriveAddress(key, l.cfg.AddressPrefix)
		existing, err := l.store.GetAccount(ctx, address)
		if err != nil {
			return "", nil, fmt.Errorf("get account: %w", err)
		}
		if existing != nil {
			l.logger.Warn().Str("address", address).Int("attempt", attempt).Msg("generated key maps to an existing wallet")
			continue
		}

		ok, acct, err := l.Authenticate(ctx, key)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			continue
		}

		if l.cfg.InitialBalance.IsPositive() {
			if _, err := l.Mint(ctx, acct.Address, l.cfg.InitialBalance); err != nil {
				return "", nil, fmt.Errorf("initial balance: %w", err)
			}
			if acct, err = l.store.GetAccount(ctx, acct.Address); err != nil {
				return "", nil, fmt.Errorf("get account: %w", err)
			}
		}
		return key, acct, nil
	}

	l.logger.Error().Int("attempts", maxKeyAttempts).Msg("wallet key generation exhausted")
	return "", nil, domain.ErrKeyGenerationExhausted
}

// randomKey draws keyLength characters uniformly from keyCharset.
func randomKey() (string, error) {
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = keyCharset[int(b)%len(keyCharset)]
	}
	return string(buf), nil
}

// ─── Lookups ────────────────────────────────────────────────────────────────

// Account returns the wallet at address or AddressNotFound.
func (l *Ledger) Account(ctx context.Context, address string) (*domain.Account, error) {
	acct, err := l.store.GetAccount(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrAddressNotFound
	}
	return acct, nil
}

// Transaction returns ledger entry id or TransactionNotFound.
func (l *Ledger) Transaction(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	e, err := l.store.GetLedgerEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if e == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return e, nil
}

// Transactions lists entries newest first; address "" lists all.
func (l *Ledger) Transactions(ctx context.Context, address string, limit, offset int) ([]domain.LedgerEntry, error) {
	limit, offset = clampPage(limit, offset)
	entries, err := l.store.ListLedgerEntries(ctx, address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return entries, nil
}

// NameCount returns how many names owner holds.
func (l *Ledger) NameCount(ctx context.Context, owner string) (int, error) {
	n, err := l.store.CountNames(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("count names: %w", err)
	}
	return n, nil
}

// Supply returns the total balance held outside the system account.
func (l *Ledger) Supply(ctx context.Context) (decimal.Decimal, error) {
	cents, err := l.store.Supply(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("supply: %w", err)
	}
	return domain.FromCents(cents), nil
}

// SetLocked locks or unlocks outgoing transfers from address.
func (l *Ledger) SetLocked(ctx context.Context, address string, locked bool) error {
	if domain.IsSystemAddress(address) {
		return domain.ParameterError("address")
	}
	if err := l.store.SetLocked(ctx, address, locked); err != nil {
		if _, ok := domain.AsError(err); ok {
			return err
		}
		return fmt.Errorf("set locked: %w", err)
	}
	l.logger.Info().Str("address", address).Bool("locked", locked).Msg("wallet lock changed")
	return nil
}

// ─── Commit & Helpers ───────────────────────────────────────────────────────

func (l *Ledger) commit(ctx context.Context, c domain.Commit) error {
	start := time.Now()
	err := l.store.Commit(ctx, c)
	observability.LedgerCommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return err
		}
		return fmt.Errorf("commit %s: %w", c.Entry.Type, err)
	}

	observability.LedgerTransactions.WithLabelValues(string(c.Entry.Type)).Inc()
	l.logger.Info().
		Int64("id", c.Entry.ID).
		Str("type", string(c.Entry.Type)).
		Str("from", c.Entry.From).
		Str("to", c.Entry.To).
		Str("amount", c.Entry.Amount.StringFixed(domain.AmountPlaces)).
		Msg("transaction committed")
	return nil
}

// observe counts refused operations by error code.
func (l *Ledger) observe(err *error) {
	if *err == nil {
		return
	}
	code := domain.CodeInternal
	if e, ok := domain.AsError(*err); ok {
		code = e.Code
	} else if errors.Is(*err, context.Canceled) {
		return
	}
	observability.LedgerRejections.WithLabelValues(string(code)).Inc()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
