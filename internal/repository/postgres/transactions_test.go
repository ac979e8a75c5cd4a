package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitewallet/ledger/internal/ledger"
	"github.com/vitewallet/ledger/internal/types"
)

// newTestDB connects to the database named by TEST_POSTGRES_URL and applies
// the schema. Tests using it are skipped when the variable is unset.
func newTestDB(t *testing.T) *Postgres {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	p := New(pool, time.Second)
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return p
}

func createTestWallet(t *testing.T, p *Postgres) uuid.UUID {
	t.Helper()

	id := uuid.New()
	err := p.CreateWallet(context.Background(), &types.Wallet{
		ID:     id,
		MSISDN: "+2547" + id.String()[:8],
		Token:  "token-" + id.String(),
		Name:   "wallet " + id.String()[:8],
		Status: types.WalletActive,
		Type:   types.WalletNormal,
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	return id
}

func TestBalanceSnapshotFoldsConsistently(t *testing.T) {
	p := newTestDB(t)
	ctx := context.Background()

	source := createTestWallet(t, p)
	dest := createTestWallet(t, p)

	if err := p.CreateTopup(ctx, &types.Topup{
		WalletID: source, Amount: 1000, Currency: "KES",
	}); err != nil {
		t.Fatalf("topup: %v", err)
	}

	tx := &types.Transaction{
		TRID:                uuid.New(),
		ServerCorrelationID: uuid.New(),
		Source:              source,
		Destination:         dest,
		Amount:              300,
		Currency:            "KES",
		Type:                types.TypeTransfer,
		State:               types.StatePending,
		RequestDate:         time.Now().UTC(),
	}
	if err := p.CreateWithFundsCheck(ctx, tx, true); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	txs, topups, err := p.BalanceSnapshot(ctx, source)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	balances := ledger.Compute(source, txs, topups)
	if balances.Available != 700 || balances.Reserved != 300 {
		t.Errorf("available=%d reserved=%d, want 700/300",
			balances.Available, balances.Reserved)
	}

	destTxs, destTopups, err := p.BalanceSnapshot(ctx, dest)
	if err != nil {
		t.Fatalf("dest snapshot: %v", err)
	}

	destBalances := ledger.Compute(dest, destTxs, destTopups)
	if destBalances.Uncleared != 300 || destBalances.Available != 0 {
		t.Errorf("dest uncleared=%d available=%d, want 300/0",
			destBalances.Uncleared, destBalances.Available)
	}
}
