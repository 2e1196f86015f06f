// Package ledger holds fungible balances and card token ownership.
//
// The engine never touches balances or ownership directly; it goes through
// Ledger and Registry so the backing store can be swapped (in-memory for
// tests, PostgreSQL in production).
package ledger

import (
	"context"
	"errors"

	"github.com/atmx/scratch-engine/internal/asset"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrBalanceOverflow is returned when a credit would overflow uint64.
	ErrBalanceOverflow = errors.New("ledger: balance overflow")

	// ErrTokenNotFound is returned for an unknown token.
	ErrTokenNotFound = errors.New("ledger: token not found")

	// ErrTokenExists is returned when minting an already minted token.
	ErrTokenExists = errors.New("ledger: token already minted")

	// ErrNotTokenOwner is returned when a transfer names the wrong owner.
	ErrNotTokenOwner = errors.New("ledger: not the token owner")
)

// Ledger moves fungible balances between accounts.
type Ledger interface {
	// Balance returns the account's holding of an asset; unknown accounts hold 0.
	Balance(ctx context.Context, account string, a asset.ID) (uint64, error)

	// Transfer moves amount from one account to another. Zero is a no-op.
	Transfer(ctx context.Context, from, to string, a asset.ID, amount uint64) error

	// Deposit credits an account from outside the system.
	Deposit(ctx context.Context, account string, a asset.ID, amount uint64) error
}

// Registry tracks ownership of unique card tokens.
type Registry interface {
	// Mint creates the given tokens owned by owner. Either every token is
	// minted or none is.
	Mint(ctx context.Context, owner string, tokenIDs ...string) error

	// OwnerOf returns the current owner of a token.
	OwnerOf(ctx context.Context, tokenID string) (string, error)

	// IsOwner reports whether account currently owns the token.
	IsOwner(ctx context.Context, tokenID, account string) (bool, error)

	// TransferOwnership hands a token from its current owner to another account.
	TransferOwnership(ctx context.Context, tokenID, from, to string) error
}

// BalanceAtLeast reports whether account holds at least amount of an asset.
func BalanceAtLeast(ctx context.Context, l Ledger, account string, a asset.ID, amount uint64) (bool, error) {
	bal, err := l.Balance(ctx, account, a)
	if err != nil {
		return false, err
	}
	return bal >= amount, nil
}
