package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_TransferMovesBalance(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	if err := l.Deposit(ctx, "alice", "USDC", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := l.Transfer(ctx, "alice", "treasury", "USDC", 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	alice, _ := l.Balance(ctx, "alice", "USDC")
	treasury, _ := l.Balance(ctx, "treasury", "USDC")
	if alice != 70 || treasury != 30 {
		t.Errorf("balances alice=%d treasury=%d, want 70/30", alice, treasury)
	}
}

func TestMemory_TransferInsufficient(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	_ = l.Deposit(ctx, "alice", "USDC", 10)

	err := l.Transfer(ctx, "alice", "bob", "USDC", 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	alice, _ := l.Balance(ctx, "alice", "USDC")
	if alice != 10 {
		t.Errorf("failed transfer changed balance to %d", alice)
	}
}

func TestMemory_ZeroTransferIsNoop(t *testing.T) {
	l := NewMemory()
	if err := l.Transfer(context.Background(), "nobody", "bob", "USDC", 0); err != nil {
		t.Errorf("zero transfer: %v", err)
	}
}

func TestMemory_DepositOverflow(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	_ = l.Deposit(ctx, "alice", "USDC", ^uint64(0))

	if err := l.Deposit(ctx, "alice", "USDC", 1); !errors.Is(err, ErrBalanceOverflow) {
		t.Errorf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestBalanceAtLeast(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	_ = l.Deposit(ctx, "alice", "USDC", 50)

	tests := []struct {
		amount uint64
		want   bool
	}{
		{0, true},
		{50, true},
		{51, false},
	}
	for _, tt := range tests {
		got, err := BalanceAtLeast(ctx, l, "alice", "USDC", tt.amount)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("BalanceAtLeast(%d) = %v, want %v", tt.amount, got, tt.want)
		}
	}
}

func TestMemoryRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	if err := r.Mint(ctx, "alice", "c1", "c2"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if ok, _ := r.IsOwner(ctx, "c1", "alice"); !ok {
		t.Error("alice should own c1")
	}

	if err := r.TransferOwnership(ctx, "c1", "bob", "carol"); !errors.Is(err, ErrNotTokenOwner) {
		t.Errorf("expected ErrNotTokenOwner, got %v", err)
	}
	if err := r.TransferOwnership(ctx, "c1", "alice", "bob"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, _ := r.OwnerOf(ctx, "c1")
	if owner != "bob" {
		t.Errorf("owner = %s, want bob", owner)
	}

	if _, err := r.OwnerOf(ctx, "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestMemoryRegistry_MintIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	_ = r.Mint(ctx, "alice", "c1")

	if err := r.Mint(ctx, "bob", "c2", "c1"); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if _, err := r.OwnerOf(ctx, "c2"); !errors.Is(err, ErrTokenNotFound) {
		t.Error("c2 should not be minted after a failed batch")
	}
}
