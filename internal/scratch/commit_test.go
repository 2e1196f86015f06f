package scratch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/ledger"
	"github.com/atmx/scratch-engine/internal/model"
	"github.com/atmx/scratch-engine/internal/rng"
	"github.com/atmx/scratch-engine/internal/store"
)

// ctxStore fails writes made on a finished context, the way a database
// driver does.
type ctxStore struct {
	*store.MemoryStore
}

func (s ctxStore) InsertCards(ctx context.Context, cards []model.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.InsertCards(ctx, cards)
}

func (s ctxStore) DeleteCards(ctx context.Context, cards []model.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.DeleteCards(ctx, cards)
}

func (s ctxStore) SetScratched(ctx context.Context, id string, from, to bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.SetScratched(ctx, id, from, to, at)
}

// cancellingLedger honours ctx and, while failFrom is set, cancels the
// request and fails every transfer out of that account.
type cancellingLedger struct {
	*ledger.Memory
	failFrom string
	cancel   context.CancelFunc
}

func (l *cancellingLedger) Transfer(ctx context.Context, from, to string, a asset.ID, amount uint64) error {
	if l.failFrom != "" && from == l.failFrom {
		l.cancel()
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Memory.Transfer(ctx, from, to, a, amount)
}

// cancellingRegistry cancels the request and fails every mint.
type cancellingRegistry struct {
	*ledger.MemoryRegistry
	cancel context.CancelFunc
}

func (r *cancellingRegistry) Mint(ctx context.Context, owner string, tokenIDs ...string) error {
	r.cancel()
	return fmt.Errorf("mint %d tokens: %w", len(tokenIDs), context.Canceled)
}

func newCommitEngine(t *testing.T, st store.Store, l *cancellingLedger, reg ledger.Registry, src rng.Source) *Engine {
	t.Helper()
	var seq int
	e, err := New(st, l, reg, src,
		Config{Treasury: treasury, DefaultAsset: usdc, Cost: cost},
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	require.NoError(t, err)
	_, err = e.Bootstrap(ctx, seedState())
	require.NoError(t, err)
	require.NoError(t, l.Deposit(ctx, treasury, usdc, 1000))
	require.NoError(t, l.Deposit(ctx, treasury, sui, 1000))
	return e
}

func TestScratch_CancelledPayoutStillRollsBack(t *testing.T) {
	l := &cancellingLedger{Memory: ledger.NewMemory()}
	e := newCommitEngine(t, ctxStore{store.NewMemoryStore()}, l, ledger.NewMemoryRegistry(),
		rng.NewSequence(drawsFor(4, hit)...))
	require.NoError(t, l.Deposit(ctx, "alice", usdc, cost))
	cards, err := e.Buy(ctx, "alice", 1)
	require.NoError(t, err)
	id := cards[0].ID

	reqCtx, cancel := context.WithCancel(ctx)
	l.failFrom, l.cancel = treasury, cancel

	_, err = e.Scratch(reqCtx, "alice", id)
	require.ErrorIs(t, err, ErrPayoutFailed)
	assert.ErrorIs(t, err, context.Canceled)

	c, err := e.GetCard(ctx, id)
	require.NoError(t, err)
	assert.False(t, c.Summary.Scratched, "flag must be rolled back")

	// A retry on a fresh request settles the card exactly once.
	l.failFrom = ""
	_, err = e.Scratch(ctx, "alice", id)
	require.NoError(t, err)
	got, err := l.Balance(ctx, "alice", sui)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got)

	_, err = e.Scratch(ctx, "alice", id)
	assert.ErrorIs(t, err, ErrAlreadyScratched)
}

func TestBuy_FailedMintUnwindsBatch(t *testing.T) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := &cancellingLedger{Memory: ledger.NewMemory()}
	reg := &cancellingRegistry{MemoryRegistry: ledger.NewMemoryRegistry(), cancel: cancel}
	e := newCommitEngine(t, ctxStore{store.NewMemoryStore()}, l, reg,
		rng.NewSequence(concat(drawsFor(1, miss), drawsFor(0, miss))...))
	require.NoError(t, l.Deposit(ctx, "alice", usdc, 2*cost))

	_, err := e.Buy(reqCtx, "alice", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	bal, err := l.Balance(ctx, "alice", usdc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*cost), bal, "buyer refunded")
	bal, err = l.Balance(ctx, treasury, usdc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)

	cards, err := e.CardsByBuyer(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cards, "no cards survive a failed purchase")
	_, err = e.GetCard(ctx, "id-1")
	assert.ErrorIs(t, err, ErrCardNotFound)
}
