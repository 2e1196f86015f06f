// Package scratch runs the card lifecycle: purchase, settlement, and the
// admin operations that reconfigure future purchases.
//
// Engine serializes every mutating call with one mutex, so a purchase sees a
// single GameState snapshot and a card can be settled at most once even when
// requests race. Card outcomes are fixed at mint time; later admin changes
// never touch existing cards.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/scratch-engine/internal/admin"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/grid"
	"github.com/atmx/scratch-engine/internal/ledger"
	"github.com/atmx/scratch-engine/internal/metrics"
	"github.com/atmx/scratch-engine/internal/model"
	"github.com/atmx/scratch-engine/internal/payout"
	"github.com/atmx/scratch-engine/internal/rng"
	"github.com/atmx/scratch-engine/internal/store"
)

var (
	// ErrZeroCards is returned for a purchase of no cards.
	ErrZeroCards = errors.New("scratch: must buy at least one card")

	// ErrInsufficientFunds is returned when the buyer cannot pay for the batch.
	ErrInsufficientFunds = errors.New("scratch: insufficient funds")

	// ErrCardNotFound is returned for an unknown card.
	ErrCardNotFound = errors.New("scratch: card not found")

	// ErrNotOwner is returned when the caller does not own the card.
	ErrNotOwner = errors.New("scratch: caller does not own the card")

	// ErrAlreadyScratched is returned when settling a settled card.
	ErrAlreadyScratched = errors.New("scratch: card already scratched")

	// ErrPayoutFailed is returned when the treasury transfer for a scratch
	// fails. The card is left unscratched.
	ErrPayoutFailed = errors.New("scratch: payout transfer failed")

	// ErrInvalidAccount is returned for a blank account identity.
	ErrInvalidAccount = errors.New("scratch: account must not be empty")
)

// EventSink receives every event after the state change it describes has
// been committed.
type EventSink interface {
	Publish(ctx context.Context, e model.Event)
}

// Config holds the fixed economic parameters of a game.
type Config struct {
	// Treasury is the account that receives card payments and funds payouts.
	Treasury string

	// DefaultAsset is the settlement currency: cards are paid for in it and
	// a secondary-table miss pays out in it.
	DefaultAsset asset.ID

	// Cost is the price of one card in DefaultAsset base units.
	Cost uint64
}

// Engine is the scratch-card state machine.
type Engine struct {
	mu       sync.Mutex
	store    store.Store
	ledger   ledger.Ledger
	registry ledger.Registry
	src      rng.Source
	cfg      Config

	sink  EventSink
	now   func() time.Time
	newID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEventSink publishes committed events to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how card and event IDs are produced.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an engine over the given collaborators.
func New(st store.Store, l ledger.Ledger, reg ledger.Registry, src rng.Source, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Treasury == "" {
		return nil, fmt.Errorf("scratch: treasury: %w", ErrInvalidAccount)
	}
	if _, err := asset.Parse(string(cfg.DefaultAsset)); err != nil {
		return nil, fmt.Errorf("scratch: default asset: %w", err)
	}

	e := &Engine{
		store:    st,
		ledger:   l,
		registry: reg,
		src:      src,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's economic parameters.
func (e *Engine) Config() Config { return e.cfg }

// Bootstrap stores seed as the game state unless one already exists, and
// returns whichever state is now in effect.
func (e *Engine) Bootstrap(ctx context.Context, seed *model.GameState) (*model.GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.LoadGameState(ctx)
	if err == nil {
		slog.Info("game state loaded", "admin", existing.Admin, "updated_at", existing.UpdatedAt)
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := admin.Validate(seed); err != nil {
		return nil, fmt.Errorf("seed game state: %w", err)
	}
	initial := seed.Clone()
	initial.UpdatedAt = e.now()
	if err := e.store.SaveGameState(ctx, initial); err != nil {
		return nil, err
	}
	slog.Info("game state initialized",
		"admin", initial.Admin,
		"prize_tiers", initial.Prizes.Len(),
		"prize_odds", initial.Prizes.Sum(),
		"secondary_assets", initial.Secondary.Len(),
	)
	return initial, nil
}

// GameState returns the current configuration.
func (e *Engine) GameState(ctx context.Context) (*model.GameState, error) {
	return e.store.LoadGameState(ctx)
}

// Buy mints n cards to buyer and charges n × cost of the default asset.
// Every card is generated before any balance or storage change, so a
// failure anywhere in the batch leaves no trace.
func (e *Engine) Buy(ctx context.Context, buyer string, n uint64) ([]model.Card, error) {
	start := time.Now()
	if buyer == "" {
		return nil, reject("buy", ErrInvalidAccount)
	}
	if n == 0 {
		return nil, reject("buy", ErrZeroCards)
	}
	hi, total := bits.Mul64(n, e.cfg.Cost)
	if hi != 0 {
		return nil, reject("buy", fmt.Errorf("%w: total cost of %d cards overflows", ErrInsufficientFunds, n))
	}

	// Serialize purchases.
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.LoadGameState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}

	ok, err := ledger.BalanceAtLeast(ctx, e.ledger, buyer, e.cfg.DefaultAsset, total)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if !ok {
		return nil, reject("buy", fmt.Errorf("%w: %s needs %d %s", ErrInsufficientFunds, buyer, total, e.cfg.DefaultAsset))
	}

	// --- Generate the whole batch against one state snapshot ---
	at := e.now()
	cards := make([]model.Card, 0, n)
	ids := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		c, err := e.generate(state, buyer, at)
		if err != nil {
			return nil, reject("buy", err)
		}
		cards = append(cards, c)
		ids = append(ids, c.ID)
	}

	// --- Commit: payment, cards, tokens ---
	// Once payment starts the batch either completes or is fully unwound,
	// so nothing below observes the caller's cancellation.
	commit := context.WithoutCancel(ctx)
	if err := e.ledger.Transfer(commit, buyer, e.cfg.Treasury, e.cfg.DefaultAsset, total); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return nil, reject("buy", fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
		}
		return nil, fmt.Errorf("collect payment: %w", err)
	}
	if err := e.store.InsertCards(commit, cards); err != nil {
		e.refund(commit, buyer, total)
		return nil, fmt.Errorf("store cards: %w", err)
	}
	if err := e.registry.Mint(commit, buyer, ids...); err != nil {
		if delErr := e.store.DeleteCards(commit, cards); delErr != nil {
			slog.Error("discard unminted cards failed", "buyer", buyer, "count", len(cards), "err", delErr)
		}
		e.refund(commit, buyer, total)
		return nil, fmt.Errorf("mint cards: %w", err)
	}

	for _, c := range cards {
		e.emit(commit, model.Purchased{
			Owner:        buyer,
			Card:         c.ID,
			USDAmount:    c.Summary.USDAmount,
			PayoutAsset:  c.Summary.PayoutAsset,
			PayoutAmount: c.Summary.PayoutAmount,
		}, at)
	}

	metrics.CardsPurchased.Add(float64(n))
	metrics.PurchaseLatency.Observe(time.Since(start).Seconds())
	slog.Info("cards purchased",
		"buyer", buyer,
		"count", n,
		"cost", total,
		"asset", e.cfg.DefaultAsset,
	)
	return cards, nil
}

// generate draws one card: 12 prize cells, then the payout asset.
func (e *Engine) generate(state *model.GameState, buyer string, at time.Time) (model.Card, error) {
	cells, usd, err := grid.Generate(state.Prizes, e.src)
	if err != nil {
		return model.Card{}, err
	}
	settlement, err := payout.Resolve(usd, state.Secondary, state.Rates, e.cfg.DefaultAsset, e.src)
	if err != nil {
		return model.Card{}, err
	}
	return model.Card{
		ID:    e.newID(),
		Buyer: buyer,
		Summary: model.CardSummary{
			USDAmount:    settlement.USDAmount,
			PayoutAsset:  settlement.Asset,
			PayoutAmount: settlement.Amount,
			Cells:        cells,
		},
		CreatedAt: at,
	}, nil
}

func (e *Engine) refund(ctx context.Context, buyer string, total uint64) {
	if err := e.ledger.Transfer(ctx, e.cfg.Treasury, buyer, e.cfg.DefaultAsset, total); err != nil {
		slog.Error("refund failed", "buyer", buyer, "amount", total, "err", err)
	}
}

// Scratch settles a card: it marks the card scratched, then pays the
// pre-computed settlement from the treasury to the caller. If the payment
// fails the flag is restored and the call fails as a whole.
func (e *Engine) Scratch(ctx context.Context, caller, cardID string) (*model.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	card, err := e.getCard(ctx, cardID)
	if err != nil {
		return nil, reject("scratch", err)
	}
	if err := e.checkOwner(ctx, cardID, caller); err != nil {
		return nil, reject("scratch", err)
	}
	if card.Summary.Scratched {
		return nil, reject("scratch", fmt.Errorf("%w: %s", ErrAlreadyScratched, cardID))
	}

	// The flag, the payment and any rollback must all land, whatever
	// happens to the caller's context.
	commit := context.WithoutCancel(ctx)
	at := e.now()
	if err := e.store.SetScratched(commit, cardID, false, true, at); err != nil {
		if errors.Is(err, store.ErrScratchConflict) {
			return nil, reject("scratch", fmt.Errorf("%w: %s", ErrAlreadyScratched, cardID))
		}
		return nil, fmt.Errorf("mark scratched: %w", err)
	}

	s := card.Summary
	if err := e.ledger.Transfer(commit, e.cfg.Treasury, caller, s.PayoutAsset, s.PayoutAmount); err != nil {
		if rbErr := e.store.SetScratched(commit, cardID, true, false, at); rbErr != nil {
			slog.Error("scratch rollback failed", "card", cardID, "err", rbErr)
		}
		return nil, fmt.Errorf("%w: card %s: %w", ErrPayoutFailed, cardID, err)
	}

	card.Summary.Scratched = true
	card.ScratchedAt = at

	e.emit(commit, model.Scratched{
		Owner:        caller,
		Card:         cardID,
		USDAmount:    s.USDAmount,
		PayoutAsset:  s.PayoutAsset,
		PayoutAmount: s.PayoutAmount,
	}, at)

	outcome := "win"
	if s.USDAmount == 0 {
		outcome = "blank"
	}
	metrics.CardsScratched.WithLabelValues(outcome).Inc()
	metrics.PayoutVolume.WithLabelValues(string(s.PayoutAsset)).Add(float64(s.PayoutAmount))
	slog.Info("card scratched",
		"card", cardID,
		"owner", caller,
		"usd_amount", s.USDAmount,
		"payout_asset", s.PayoutAsset,
		"payout_amount", s.PayoutAmount,
	)
	return card, nil
}

// GetCard returns a card without side effects.
func (e *Engine) GetCard(ctx context.Context, cardID string) (*model.Card, error) {
	return e.getCard(ctx, cardID)
}

// CardEvents returns the event history of a card.
func (e *Engine) CardEvents(ctx context.Context, cardID string) ([]model.EventRecord, error) {
	if _, err := e.getCard(ctx, cardID); err != nil {
		return nil, err
	}
	return e.store.ListEventsByCard(ctx, cardID)
}

// CardsByBuyer returns the cards an account has bought.
func (e *Engine) CardsByBuyer(ctx context.Context, buyer string) ([]model.Card, error) {
	return e.store.ListCardsByBuyer(ctx, buyer)
}

// OwnerOf returns the current holder of a card.
func (e *Engine) OwnerOf(ctx context.Context, cardID string) (string, error) {
	owner, err := e.registry.OwnerOf(ctx, cardID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return "", fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return owner, err
}

// TransferCard hands a card to another account. The card keeps its
// outcome and scratched state.
func (e *Engine) TransferCard(ctx context.Context, from, to, cardID string) error {
	if to == "" {
		return reject("transfer", ErrInvalidAccount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getCard(ctx, cardID); err != nil {
		return reject("transfer", err)
	}
	err := e.registry.TransferOwnership(ctx, cardID, from, to)
	switch {
	case errors.Is(err, ledger.ErrNotTokenOwner), errors.Is(err, ledger.ErrTokenNotFound):
		return reject("transfer", fmt.Errorf("%w: %s", ErrNotOwner, cardID))
	case err != nil:
		return fmt.Errorf("transfer card %s: %w", cardID, err)
	}

	slog.Info("card transferred", "card", cardID, "from", from, "to", to)
	return nil
}

// Balance reports an account's holding of an asset.
func (e *Engine) Balance(ctx context.Context, account string, a asset.ID) (uint64, error) {
	return e.ledger.Balance(ctx, account, a)
}

// Deposit credits an account from outside the game. Used by the dev faucet
// and for funding the treasury.
func (e *Engine) Deposit(ctx context.Context, account string, a asset.ID, amount uint64) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == 0 {
		return admin.ErrZeroAmount
	}
	return e.ledger.Deposit(ctx, account, a, amount)
}

func (e *Engine) getCard(ctx context.Context, cardID string) (*model.Card, error) {
	c, err := e.store.GetCard(ctx, cardID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return c, err
}

func (e *Engine) checkOwner(ctx context.Context, cardID, caller string) error {
	ok, err := e.registry.IsOwner(ctx, cardID, caller)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		ok, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOwner, cardID)
	}
	return nil
}

// emit records an event and forwards it to the sink. The state change is
// already committed, so failures here are logged rather than returned.
func (e *Engine) emit(ctx context.Context, ev model.Event, at time.Time) {
	rec, err := model.NewEventRecord(e.newID(), ev, at)
	if err != nil {
		slog.Error("encode event failed", "kind", ev.Kind(), "card", ev.CardID(), "err", err)
		return
	}
	if err := e.store.InsertEvent(ctx, &rec); err != nil {
		slog.Error("record event failed", "kind", ev.Kind(), "card", ev.CardID(), "err", err)
	}
	if e.sink != nil {
		e.sink.Publish(ctx, ev)
	}
}

// reject counts a refused operation and returns err unchanged.
func reject(op string, err error) error {
	metrics.Rejections.WithLabelValues(op, reason(err)).Inc()
	return err
}

func reason(err error) string {
	switch {
	case errors.Is(err, admin.ErrUnauthorized), errors.Is(err, ErrNotOwner):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, admin.ErrInsufficientTreasuryBalance):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadyScratched):
		return "already_scratched"
	case errors.Is(err, payout.ErrMissingConversionRate):
		return "missing_rate"
	case errors.Is(err, ErrCardNotFound):
		return "not_found"
	default:
		return "invalid"
	}
}
