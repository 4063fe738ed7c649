package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustAccount(t *testing.T, db *DB, address, balance string) *domain.Account {
	t.Helper()
	a, err := db.InsertAccount(context.Background(), domain.Account{
		Address: address,
		Balance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("InsertAccount(%s) error: %v", address, err)
	}
	return a
}

func transferCommit(from, to string, amount string) domain.Commit {
	amt := decimal.RequireFromString(amount)
	return domain.Commit{
		Entry: &domain.LedgerEntry{From: from, To: to, Amount: amt, Type: domain.TxTransfer},
		Deltas: []domain.AccountDelta{
			{Address: from, Amount: amt.Neg(), RequireFunds: true},
			{Address: to, Amount: amt},
		},
	}
}

// ─── Schema ─────────────────────────────────────────────────────────────────

func TestOpen_SeedsSystemAccount(t *testing.T) {
	db := newTestDB(t)
	a, err := db.GetAccount(context.Background(), domain.SystemAddress)
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if a == nil {
		t.Fatal("system account missing")
	}
	if !a.Balance.IsZero() || a.AuthHash != "" {
		t.Errorf("system account = %+v, want zero balance and no auth hash", a)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	mustAccount(t, db, "kaaaaaaaaa", "5")
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db2.Close()
	n, _ := db2.CountAccounts(context.Background())
	if n != 2 {
		t.Errorf("CountAccounts() = %d, want 2", n)
	}
}

// ─── Wallets ────────────────────────────────────────────────────────────────

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	a, err := db.GetAccount(context.Background(), "knotthere0")
	if err != nil || a != nil {
		t.Errorf("GetAccount() = %v, %v, want nil, nil", a, err)
	}
}

func TestInsertAccount_ConflictReturnsStoredRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := mustAccount(t, db, "kaaaaaaaaa", "10")

	second, err := db.InsertAccount(ctx, domain.Account{Address: "KAAAAAAAAA", Balance: decimal.NewFromInt(99)})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || !second.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("second insert = %+v, want the original row", second)
	}
}

func TestGetAccount_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	mustAccount(t, db, "kaaaaaaaaa", "1")
	a, err := db.GetAccount(context.Background(), "KAAAAAAAAA")
	if err != nil || a == nil {
		t.Fatalf("GetAccount(upper) = %v, %v", a, err)
	}
	if a.Address != "kaaaaaaaaa" {
		t.Errorf("Address = %q, want stored spelling", a.Address)
	}
}

func TestBindAuthHash_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "0")

	if err := db.BindAuthHash(ctx, "kaaaaaaaaa", "first"); err != nil {
		t.Fatal(err)
	}
	if err := db.BindAuthHash(ctx, "kaaaaaaaaa", "second"); err != nil {
		t.Fatal(err)
	}
	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	if a.AuthHash != "first" {
		t.Errorf("AuthHash = %q, want first", a.AuthHash)
	}
}

func TestSetLocked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "0")

	if err := db.SetLocked(ctx, "kaaaaaaaaa", true); err != nil {
		t.Fatal(err)
	}
	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	if !a.Locked {
		t.Error("Locked = false after SetLocked(true)")
	}
	if err := db.SetLocked(ctx, "knotthere0", true); !errors.Is(err, domain.ErrAddressNotFound) {
		t.Errorf("SetLocked(unknown) = %v, want ErrAddressNotFound", err)
	}
}

// ─── Commit ─────────────────────────────────────────────────────────────────

func TestCommit_Transfer(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "100")
	mustAccount(t, db, "kbbbbbbbbb", "0")

	c := transferCommit("kaaaaaaaaa", "kbbbbbbbbb", "30.25")
	if err := db.Commit(ctx, c); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if c.Entry.ID == 0 {
		t.Error("Entry.ID not assigned")
	}

	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	b, _ := db.GetAccount(ctx, "kbbbbbbbbb")
	if !a.Balance.Equal(decimal.RequireFromString("69.75")) {
		t.Errorf("sender balance = %s, want 69.75", a.Balance)
	}
	if !a.TotalOut.Equal(decimal.RequireFromString("30.25")) {
		t.Errorf("sender totalout = %s, want 30.25", a.TotalOut)
	}
	if !b.Balance.Equal(decimal.RequireFromString("30.25")) || !b.TotalIn.Equal(b.Balance) {
		t.Errorf("recipient = %s/%s, want 30.25", b.Balance, b.TotalIn)
	}

	e, err := db.GetLedgerEntry(ctx, c.Entry.ID)
	if err != nil || e == nil {
		t.Fatalf("GetLedgerEntry() = %v, %v", e, err)
	}
	if e.From != "kaaaaaaaaa" || e.To != "kbbbbbbbbb" || e.Type != domain.TxTransfer {
		t.Errorf("entry = %+v", e)
	}
	if !e.Amount.Equal(decimal.RequireFromString("30.25")) {
		t.Errorf("entry amount = %s", e.Amount)
	}
}

func TestCommit_InsufficientFundsRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "10")
	mustAccount(t, db, "kbbbbbbbbb", "0")

	err := db.Commit(ctx, transferCommit("kaaaaaaaaa", "kbbbbbbbbb", "10.01"))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Commit() = %v, want ErrInsufficientFunds", err)
	}
	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	b, _ := db.GetAccount(ctx, "kbbbbbbbbb")
	if !a.Balance.Equal(decimal.NewFromInt(10)) || !b.Balance.IsZero() {
		t.Errorf("balances changed: %s, %s", a.Balance, b.Balance)
	}
	entries, _ := db.ListLedgerEntries(ctx, "", 10, 0)
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestCommit_UnknownRecipientRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "10")

	err := db.Commit(ctx, transferCommit("kaaaaaaaaa", "knotthere0", "1"))
	if !errors.Is(err, domain.ErrAddressNotFound) {
		t.Fatalf("Commit() = %v, want ErrAddressNotFound", err)
	}
	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	if !a.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("sender debited despite rollback: %s", a.Balance)
	}
}

func TestCommit_ConcurrentOverdraft(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "50")
	mustAccount(t, db, "kbbbbbbbbb", "0")

	const attempts = 20
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.Commit(ctx, transferCommit("kaaaaaaaaa", "kbbbbbbbbb", "10")); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 5 {
		t.Errorf("successful transfers = %d, want 5", ok)
	}
	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	b, _ := db.GetAccount(ctx, "kbbbbbbbbb")
	if !a.Balance.IsZero() || !b.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balances = %s, %s, want 0, 50", a.Balance, b.Balance)
	}
}

func TestCommit_NameRegistrationAndTaken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "1000")

	buy := func() (domain.Commit, error) {
		c := transferCommit("kaaaaaaaaa", domain.SystemAddress, "500")
		c.Entry.Type = domain.TxNamePurchase
		name := "shop"
		c.Entry.Name = &name
		c.Name = &domain.Name{Name: "shop", Owner: "kaaaaaaaaa", OriginalOwner: "kaaaaaaaaa", RegisteredAt: time.Now()}
		return c, db.Commit(ctx, c)
	}

	c, err := buy()
	if err != nil {
		t.Fatalf("first purchase error: %v", err)
	}
	if c.Name.ID == 0 {
		t.Error("Name.ID not assigned")
	}
	if _, err := buy(); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("second purchase = %v, want ErrNameTaken", err)
	}

	a, _ := db.GetAccount(ctx, "kaaaaaaaaa")
	if !a.Balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500 (second purchase must roll back)", a.Balance)
	}
	n, _ := db.CountNames(ctx, "KAAAAAAAAA")
	if n != 1 {
		t.Errorf("CountNames() = %d, want 1", n)
	}
}

func TestCommit_NameUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "0")
	mustAccount(t, db, "kbbbbbbbbb", "0")

	reg := domain.Commit{
		Entry: &domain.LedgerEntry{From: "kaaaaaaaaa", To: domain.SystemAddress, Type: domain.TxNamePurchase},
		Name:  &domain.Name{Name: "shop", Owner: "kaaaaaaaaa", OriginalOwner: "kaaaaaaaaa", RegisteredAt: time.Now()},
	}
	if err := db.Commit(ctx, reg); err != nil {
		t.Fatal(err)
	}

	n, _ := db.GetName(ctx, "shop")
	now := time.Now()
	a := "https://example.com"
	n.Owner = "kbbbbbbbbb"
	n.TransferredAt = &now
	n.Metadata = &a
	err := db.Commit(ctx, domain.Commit{
		Entry: &domain.LedgerEntry{From: "kaaaaaaaaa", To: "kbbbbbbbbb", Type: domain.TxNameTransfer},
		Name:  n,
	})
	if err != nil {
		t.Fatalf("transfer commit error: %v", err)
	}

	got, _ := db.GetName(ctx, "shop")
	if got.Owner != "kbbbbbbbbb" || got.OriginalOwner != "kaaaaaaaaa" {
		t.Errorf("owner = %s/%s", got.Owner, got.OriginalOwner)
	}
	if got.TransferredAt == nil || got.Metadata == nil || *got.Metadata != a {
		t.Errorf("name = %+v", got)
	}
	names, _ := db.ListNames(ctx, "kbbbbbbbbb")
	if len(names) != 1 || names[0].Name != "shop" {
		t.Errorf("ListNames() = %+v", names)
	}
}

func TestGetName_NotFound(t *testing.T) {
	db := newTestDB(t)
	n, err := db.GetName(context.Background(), "nothing")
	if err != nil || n != nil {
		t.Errorf("GetName() = %v, %v, want nil, nil", n, err)
	}
}

func TestListLedgerEntries_FilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustAccount(t, db, "kaaaaaaaaa", "100")
	mustAccount(t, db, "kbbbbbbbbb", "0")
	mustAccount(t, db, "kccccccccc", "0")

	for _, to := range []string{"kbbbbbbbbb", "kccccccccc", "kbbbbbbbbb"} {
		if err := db.Commit(ctx, transferCommit("kaaaaaaaaa", to, "1")); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := db.ListLedgerEntries(ctx, "", 10, 0)
	if len(all) != 3 || all[0].ID < all[2].ID {
		t.Fatalf("ListLedgerEntries(all) = %+v", all)
	}
	mine, _ := db.ListLedgerEntries(ctx, "KCCCCCCCCC", 10, 0)
	if len(mine) != 1 || mine[0].To != "kccccccccc" {
		t.Errorf("ListLedgerEntries(c) = %+v", mine)
	}
	page, _ := db.ListLedgerEntries(ctx, "", 1, 1)
	if len(page) != 1 || page[0].ID != all[1].ID {
		t.Errorf("paging = %+v", page)
	}
}

func TestSupply(t *testing.T) {
	db := newTestDB(t)
	mustAccount(t, db, "kaaaaaaaaa", "12.5")
	mustAccount(t, db, "kbbbbbbbbb", "0.5")
	cents, err := db.Supply(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cents != 1300 {
		t.Errorf("Supply() = %d, want 1300", cents)
	}
}
