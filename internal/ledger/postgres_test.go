package ledger_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/ledger"
	"github.com/atmx/scratch-engine/internal/store"
)

const usdc = asset.ID("USDC")

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("SCRATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCRATCH_TEST_DATABASE_URL not set")
	}
	if err := store.Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgres_ConditionalDebit(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewPostgres(newTestPool(t))
	alice, bob := uuid.New().String(), uuid.New().String()

	if err := l.Deposit(ctx, alice, usdc, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, usdc, 101); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Transfer(ctx, bob, alice, usdc, 1); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("account without a row: expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, usdc, 100); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a, _ := l.Balance(ctx, alice, usdc)
	b, _ := l.Balance(ctx, bob, usdc)
	if a != 0 || b != 100 {
		t.Errorf("balances alice=%d bob=%d, want 0/100", a, b)
	}
}

func TestPostgres_CreditOverflow(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewPostgres(newTestPool(t))
	acct := uuid.New().String()

	if err := l.Deposit(ctx, acct, usdc, 18_446_744_073_709_551_615); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := l.Deposit(ctx, acct, usdc, 1); !errors.Is(err, ledger.ErrBalanceOverflow) {
		t.Errorf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestPostgresRegistry_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	r := ledger.NewPostgresRegistry(newTestPool(t))
	t1, t2 := uuid.New().String(), uuid.New().String()

	if err := r.Mint(ctx, "alice", t1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := r.Mint(ctx, "alice", t2, t1); !errors.Is(err, ledger.ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if _, err := r.OwnerOf(ctx, t2); !errors.Is(err, ledger.ErrTokenNotFound) {
		t.Errorf("failed batch minted %s", t2)
	}

	if err := r.TransferOwnership(ctx, t1, "bob", "carol"); !errors.Is(err, ledger.ErrNotTokenOwner) {
		t.Errorf("expected ErrNotTokenOwner, got %v", err)
	}
	if err := r.TransferOwnership(ctx, t1, "alice", "bob"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ok, _ := r.IsOwner(ctx, t1, "bob"); !ok {
		t.Error("bob should own the token")
	}
}
