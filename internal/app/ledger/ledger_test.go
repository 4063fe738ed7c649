package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/sqlite"
)

const (
	aliceKey  = "hello"
	aliceAddr = "kuf03bap3u"
	bobKey    = "password"
	bobAddr   = "kuf56v2ikn"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *recorder) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rec := &recorder{}
	return New(cfg, db, rec, zerolog.Nop()), rec
}

// fund creates the wallet of key and mints amount into it.
func fund(t *testing.T, l *Ledger, key, amount string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	ok, acct, err := l.Authenticate(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	if amount != "0" {
		_, err = l.Mint(ctx, acct.Address, decimal.RequireFromString(amount))
		require.NoError(t, err)
	}
	acct, err = l.Account(ctx, acct.Address)
	require.NoError(t, err)
	return acct
}

func balance(t *testing.T, l *Ledger, address string) string {
	t.Helper()
	acct, err := l.Account(context.Background(), address)
	require.NoError(t, err)
	return acct.Balance.StringFixed(2)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ─── Authentication ─────────────────────────────────────────────────────────

func TestAuthenticate_CreatesWalletOnFirstUse(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	ok, acct, err := l.Authenticate(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, aliceAddr, acct.Address)
	assert.True(t, acct.Balance.IsZero())

	ok, _, err = l.Authenticate(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, ok, "same key must keep authenticating")
}

func TestAuthenticate_EmptyKey(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	_, _, err := l.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ParameterError("privatekey"))
}

func TestAuthenticate_WrongHashFails(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	// a wallet claimed by a different hash before the key was ever used
	_, err := l.store.InsertAccount(ctx, domain.Account{Address: aliceAddr, AuthHash: "deadbeef"})
	require.NoError(t, err)

	ok, acct, err := l.Authenticate(ctx, aliceKey)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, acct)

	_, err = l.RequestTransfer(ctx, aliceKey, bobAddr, dec("1"), nil)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestAuthenticate_LegacyWalletBindsHash(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	_, err := l.store.InsertAccount(ctx, domain.Account{Address: aliceAddr})
	require.NoError(t, err)

	ok, acct, err := l.Authenticate(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.DeriveAuthHash(aliceAddr, aliceKey), acct.AuthHash)
}

// ─── Transfers ──────────────────────────────────────────────────────────────

func TestRequestTransfer_MovesFunds(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "100")
	fund(t, l, bobKey, "0")
	rec.reset()

	meta := "for coffee"
	e, err := l.RequestTransfer(ctx, aliceKey, bobAddr, dec("30.25"), &meta)
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, domain.TxTransfer, e.Type)
	assert.Equal(t, aliceAddr, e.From)
	assert.Equal(t, bobAddr, e.To)
	assert.Equal(t, "30.25", e.Amount.StringFixed(2))
	assert.Equal(t, meta, *e.Metadata)

	assert.Equal(t, "69.75", balance(t, l, aliceAddr))
	assert.Equal(t, "30.25", balance(t, l, bobAddr))
	assert.Equal(t, []domain.EventKind{domain.EventTransaction}, rec.kinds())

	stored, err := l.Transaction(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Amount.StringFixed(2), stored.Amount.StringFixed(2))
}

func TestRequestTransfer_CustomAddressPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddressPrefix = "x"
	l, _ := newTestLedger(t, cfg)
	ctx := context.Background()
	alice := fund(t, l, aliceKey, "600")
	bob := fund(t, l, bobKey, "0")
	require.Equal(t, "xuf03bap3u", alice.Address)
	require.Equal(t, "xuf56v2ikn", bob.Address)

	e, err := l.RequestTransfer(ctx, aliceKey, "xuf56v2ikn", dec("10"), nil)
	require.NoError(t, err)
	assert.Equal(t, "xuf56v2ikn", e.To)
	assert.Equal(t, "590.00", balance(t, l, "xuf03bap3u"))
	assert.Equal(t, "10.00", balance(t, l, "xuf56v2ikn"))

	_, err = l.RegisterName(ctx, aliceKey, "shop")
	require.NoError(t, err)
	n, err := l.TransferName(ctx, aliceKey, "shop", "xuf56v2ikn")
	require.NoError(t, err)
	assert.Equal(t, "xuf56v2ikn", n.Owner)

	_, err = l.RequestTransfer(ctx, aliceKey, "kuf56v2ikn", dec("1"), nil)
	assert.ErrorIs(t, err, domain.ErrNameNotFound, "default-prefix strings are names on an x ledger")
}

func TestRequestTransfer_Rounding(t *testing.T) {
	tests := []struct {
		mode domain.Rounding
		want string
	}{
		{domain.RoundHalfEven, "30.00"},
		{domain.RoundTruncate, "30.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Rounding = tt.mode
			l, _ := newTestLedger(t, cfg)
			fund(t, l, aliceKey, "100")
			fund(t, l, bobKey, "0")

			e, err := l.RequestTransfer(context.Background(), aliceKey, bobAddr, dec("30.005"), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Amount.StringFixed(2))
			assert.Equal(t, tt.want, balance(t, l, bobAddr))
		})
	}
}

func TestRequestTransfer_RoundingModesDiffer(t *testing.T) {
	half := DefaultConfig()
	trunc := DefaultConfig()
	trunc.Rounding = domain.RoundTruncate

	lh, _ := newTestLedger(t, half)
	lt, _ := newTestLedger(t, trunc)
	for _, l := range []*Ledger{lh, lt} {
		fund(t, l, aliceKey, "100")
		fund(t, l, bobKey, "0")
	}

	eh, err := lh.RequestTransfer(context.Background(), aliceKey, bobAddr, dec("1.019"), nil)
	require.NoError(t, err)
	et, err := lt.RequestTransfer(context.Background(), aliceKey, bobAddr, dec("1.019"), nil)
	require.NoError(t, err)
	assert.Equal(t, "1.02", eh.Amount.StringFixed(2))
	assert.Equal(t, "1.01", et.Amount.StringFixed(2))
}

func TestRequestTransfer_Rejections(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "10")
	fund(t, l, bobKey, "0")
	rec.reset()

	long := string(make([]byte, 256))
	tests := []struct {
		name   string
		key    string
		to     string
		amount string
		meta   *string
		want   error
	}{
		{"blank recipient", aliceKey, " ", "1", nil, domain.ParameterError("to")},
		{"metadata too long", aliceKey, bobAddr, "1", &long, domain.ParameterError("metadata")},
		{"empty key", "", bobAddr, "1", nil, domain.ErrAuthenticationFailed},
		{"zero amount", aliceKey, bobAddr, "0", nil, domain.ErrInvalidAmount},
		{"negative amount", aliceKey, bobAddr, "-5", nil, domain.ErrInvalidAmount},
		{"rounds to zero", aliceKey, bobAddr, "0.001", nil, domain.ErrInvalidAmount},
		{"overdraw", aliceKey, bobAddr, "10.01", nil, domain.ErrInsufficientFunds},
		{"bad address", aliceKey, "not an address!", "1", nil, domain.ParameterError("to")},
		{"unknown address", aliceKey, "kzzzzzzzzz", "1", nil, domain.ErrAddressNotFound},
		{"unknown name", aliceKey, "nobody.kro", "1", nil, domain.ErrNameNotFound},
		{"self", aliceKey, "KUF03BAP3U", "1", nil, domain.ErrSameWalletTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RequestTransfer(ctx, tt.key, tt.to, dec(tt.amount), tt.meta)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, "10.00", balance(t, l, aliceAddr))
	assert.Equal(t, "0.00", balance(t, l, bobAddr))
	assert.Empty(t, rec.kinds(), "rejected transfers must not publish")
}

func TestRequestTransfer_Locked(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "10")
	fund(t, l, bobKey, "0")

	require.NoError(t, l.SetLocked(ctx, aliceAddr, true))
	_, err := l.RequestTransfer(ctx, aliceKey, bobAddr, dec("1"), nil)
	assert.ErrorIs(t, err, domain.ErrAddressLocked)

	// incoming funds still arrive
	_, err = l.Mint(ctx, aliceAddr, dec("1"))
	require.NoError(t, err)

	require.NoError(t, l.SetLocked(ctx, aliceAddr, false))
	_, err = l.RequestTransfer(ctx, aliceKey, bobAddr, dec("1"), nil)
	assert.NoError(t, err)

	assert.ErrorIs(t, l.SetLocked(ctx, "kzzzzzzzzz", true), domain.ErrAddressNotFound)
	assert.ErrorIs(t, l.SetLocked(ctx, domain.SystemAddress, true), domain.ErrInvalidParameter)
}

func TestRequestTransfer_MetaName(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "600")
	fund(t, l, bobKey, "0")

	_, err := l.RegisterName(ctx, bobKey, "shop")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = l.Mint(ctx, bobAddr, dec("500"))
	require.NoError(t, err)
	_, err = l.RegisterName(ctx, bobKey, "shop")
	require.NoError(t, err)

	e, err := l.RequestTransfer(ctx, aliceKey, "till@shop.kro", dec("5"), nil)
	require.NoError(t, err)
	assert.Equal(t, bobAddr, e.To)
	require.NotNil(t, e.SentName)
	assert.Equal(t, "shop", *e.SentName)
	require.NotNil(t, e.SentMetaname)
	assert.Equal(t, "till", *e.SentMetaname)

	e, err = l.RequestTransfer(ctx, aliceKey, "shop", dec("5"), nil)
	require.NoError(t, err)
	assert.Equal(t, bobAddr, e.To)
	assert.Nil(t, e.SentMetaname)

	assert.Equal(t, "10.00", balance(t, l, bobAddr))
}

func TestRequestTransfer_ConcurrentOverdraft(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "50")
	fund(t, l, bobKey, "0")

	var (
		wg sync.WaitGroup
		ok atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RequestTransfer(ctx, aliceKey, bobAddr, dec("10"), nil)
			switch {
			case err == nil:
				ok.Add(1)
			case !errors.Is(err, domain.ErrInsufficientFunds):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), ok.Load())
	assert.Equal(t, "0.00", balance(t, l, aliceAddr))
	assert.Equal(t, "50.00", balance(t, l, bobAddr))
}

// ─── System Account ─────────────────────────────────────────────────────────

func TestMint_SystemNeverDebited(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "0")
	rec.reset()

	e, err := l.Mint(ctx, aliceAddr, dec("250"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxMined, e.Type)
	assert.Equal(t, domain.SystemAddress, e.From)

	sys, err := l.Account(ctx, domain.SystemAddress)
	require.NoError(t, err)
	assert.True(t, sys.Balance.IsZero())
	assert.True(t, sys.TotalOut.IsZero())
	assert.Equal(t, "250.00", balance(t, l, aliceAddr))
	assert.Len(t, rec.kinds(), 1)

	supply, err := l.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "250.00", supply.StringFixed(2))
}

func TestMint_Rejections(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	_, err := l.Mint(ctx, aliceAddr, dec("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Mint(ctx, domain.SystemAddress, dec("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	_, err = l.Mint(ctx, "kzzzzzzzzz", dec("1"))
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
}

// ─── Wallet Creation ────────────────────────────────────────────────────────

func TestCreateWallet_FundsInitialBalance(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	key, acct, err := l.CreateWallet(ctx)
	require.NoError(t, err)
	assert.Len(t, key, keyLength)
	assert.Equal(t, domain.DeriveAddress(key, "k"), acct.Address)
	assert.Equal(t, "100.00", acct.Balance.StringFixed(2))
	assert.Equal(t, []domain.EventKind{domain.EventTransaction}, rec.kinds())

	ok, _, err := l.Authenticate(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateWallet_SkipsCollisions(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	fund(t, l, aliceKey, "0")

	keys := []string{aliceKey, aliceKey, bobKey}
	l.newKey = func() (string, error) {
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}
	key, acct, err := l.CreateWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bobKey, key)
	assert.Equal(t, bobAddr, acct.Address)
}

func TestCreateWallet_RetryCap(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	fund(t, l, aliceKey, "0")

	calls := 0
	l.newKey = func() (string, error) {
		calls++
		return aliceKey, nil
	}
	_, _, err := l.CreateWallet(context.Background())
	assert.ErrorIs(t, err, domain.ErrKeyGenerationExhausted)
	assert.Equal(t, maxKeyAttempts, calls)
}

func TestRandomKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		k, err := randomKey()
		require.NoError(t, err)
		require.Len(t, k, keyLength)
		for _, c := range k {
			require.Contains(t, keyCharset, string(c))
		}
		seen[k] = true
	}
	assert.Len(t, seen, 50)
}

// ─── Names ──────────────────────────────────────────────────────────────────

func TestRegisterName(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "600")
	rec.reset()

	n, err := l.RegisterName(ctx, aliceKey, " Shop.KRO ")
	require.NoError(t, err)
	assert.Equal(t, "shop", n.Name)
	assert.Equal(t, aliceAddr, n.Owner)
	assert.Equal(t, aliceAddr, n.OriginalOwner)
	assert.NotZero(t, n.ID)
	assert.Equal(t, "100.00", balance(t, l, aliceAddr))
	assert.Equal(t, []domain.EventKind{domain.EventTransaction, domain.EventName}, rec.kinds())

	entries, err := l.Transactions(ctx, aliceAddr, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TxNamePurchase, entries[0].Type)
	assert.Equal(t, domain.SystemAddress, entries[0].To)

	avail, err := l.NameAvailable(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, avail)

	count, err := l.NameCount(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterName_Rejections(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "1000")
	fund(t, l, bobKey, "100")
	_, err := l.RegisterName(ctx, aliceKey, "shop")
	require.NoError(t, err)

	_, err = l.RegisterName(ctx, bobKey, "shop")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	_, err = l.RegisterName(ctx, bobKey, "new")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = l.RegisterName(ctx, aliceKey, "bad name!")
	assert.ErrorIs(t, err, domain.ParameterError("name"))
	_, err = l.RegisterName(ctx, "", "fresh")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)

	assert.Equal(t, "500.00", balance(t, l, aliceAddr))
	assert.Equal(t, "100.00", balance(t, l, bobAddr))
}

func TestTransferName(t *testing.T) {
	l, rec := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "500")
	fund(t, l, bobKey, "0")
	_, err := l.RegisterName(ctx, aliceKey, "shop")
	require.NoError(t, err)
	rec.reset()

	_, err = l.TransferName(ctx, bobKey, "shop", bobAddr)
	assert.ErrorIs(t, err, domain.ErrNotNameOwner)
	_, err = l.TransferName(ctx, aliceKey, "nope", bobAddr)
	assert.ErrorIs(t, err, domain.ErrNameNotFound)
	_, err = l.TransferName(ctx, aliceKey, "shop", "kzzzzzzzzz")
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)

	same, err := l.TransferName(ctx, aliceKey, "shop", aliceAddr)
	require.NoError(t, err)
	assert.Nil(t, same.TransferredAt)
	assert.Empty(t, rec.kinds(), "transfer to current owner is a no-op")

	n, err := l.TransferName(ctx, aliceKey, "shop", bobAddr)
	require.NoError(t, err)
	assert.Equal(t, bobAddr, n.Owner)
	assert.Equal(t, aliceAddr, n.OriginalOwner)
	assert.NotNil(t, n.TransferredAt)
	assert.Equal(t, []domain.EventKind{domain.EventTransaction, domain.EventName}, rec.kinds())

	stored, err := l.Name(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, bobAddr, stored.Owner)

	names, err := l.Names(ctx, bobAddr)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "shop", names[0].Name)
}

func TestUpdateName(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	fund(t, l, aliceKey, "500")
	_, err := l.RegisterName(ctx, aliceKey, "shop")
	require.NoError(t, err)

	record := "example.com/shop"
	n, err := l.UpdateName(ctx, aliceKey, "shop", &record)
	require.NoError(t, err)
	require.NotNil(t, n.Metadata)
	assert.Equal(t, record, *n.Metadata)
	assert.NotNil(t, n.UpdatedAt)

	bad := " spaced out"
	_, err = l.UpdateName(ctx, aliceKey, "shop", &bad)
	assert.ErrorIs(t, err, domain.ParameterError("a"))

	empty := ""
	n, err = l.UpdateName(ctx, aliceKey, "shop", &empty)
	require.NoError(t, err)
	assert.Nil(t, n.Metadata)

	entries, err := l.Transactions(ctx, aliceAddr, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, domain.TxNameARecord, entries[0].Type)
	assert.True(t, entries[0].Amount.IsZero())
	assert.Equal(t, "0.00", balance(t, l, aliceAddr))
}

func TestNameLookups(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	_, err := l.Name(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNameNotFound)
	_, err = l.Name(ctx, "bad name")
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	avail, err := l.NameAvailable(ctx, "missing.kro")
	require.NoError(t, err)
	assert.True(t, avail)

	names, err := l.Names(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTransaction_NotFound(t *testing.T) {
	l, _ := newTestLedger(t, DefaultConfig())
	_, err := l.Transaction(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 50, 0},
		{10, 5, 10, 5},
		{5000, -1, 1000, 0},
	}
	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}
