package scratch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atmx/scratch-engine/internal/admin"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/metrics"
	"github.com/atmx/scratch-engine/internal/model"
)

// SetOdds replaces the prize table used by future purchases.
func (e *Engine) SetOdds(ctx context.Context, caller string, thresholds []uint32, payouts []uint64) (*model.GameState, error) {
	return e.update(ctx, "set_odds", caller, func(s *model.GameState) (*model.GameState, error) {
		return admin.SetOdds(s, caller, thresholds, payouts, e.now())
	})
}

// SetSecondaryPrizes replaces the payout asset table.
func (e *Engine) SetSecondaryPrizes(ctx context.Context, caller string, thresholds []uint32, assets []string) (*model.GameState, error) {
	return e.update(ctx, "set_secondary_prizes", caller, func(s *model.GameState) (*model.GameState, error) {
		return admin.SetSecondaryPrizes(s, caller, thresholds, assets, e.now())
	})
}

// SetConversionRates replaces the conversion rate table.
func (e *Engine) SetConversionRates(ctx context.Context, caller string, assets []string, numerators, denominators []uint64) (*model.GameState, error) {
	return e.update(ctx, "set_conversion_rates", caller, func(s *model.GameState) (*model.GameState, error) {
		return admin.SetConversionRates(s, caller, assets, numerators, denominators, e.now())
	})
}

// SetPrizesAndRates replaces the payout asset table and its rates together.
func (e *Engine) SetPrizesAndRates(
	ctx context.Context,
	caller string,
	thresholds []uint32,
	prizeAssets []string,
	rateAssets []string,
	numerators, denominators []uint64,
) (*model.GameState, error) {
	return e.update(ctx, "set_prizes_and_rates", caller, func(s *model.GameState) (*model.GameState, error) {
		return admin.SetPrizesAndRates(s, caller, thresholds, prizeAssets, rateAssets, numerators, denominators, e.now())
	})
}

// SetAdmin hands admin rights to another account.
func (e *Engine) SetAdmin(ctx context.Context, caller, newAdmin string) (*model.GameState, error) {
	return e.update(ctx, "set_admin", caller, func(s *model.GameState) (*model.GameState, error) {
		return admin.SetAdmin(s, caller, newAdmin, e.now())
	})
}

// Withdraw moves amount of an asset from the treasury to dest.
func (e *Engine) Withdraw(ctx context.Context, caller string, a asset.ID, dest string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.LoadGameState(ctx)
	if err != nil {
		return fmt.Errorf("load game state: %w", err)
	}
	if err := admin.Authorize(state, caller); err != nil {
		return reject("withdraw", err)
	}
	if dest == "" {
		return reject("withdraw", ErrInvalidAccount)
	}
	bal, err := e.ledger.Balance(ctx, e.cfg.Treasury, a)
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	if err := admin.CheckWithdraw(state, caller, amount, bal); err != nil {
		return reject("withdraw", err)
	}
	if err := e.ledger.Transfer(ctx, e.cfg.Treasury, dest, a, amount); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	metrics.AdminUpdates.WithLabelValues("withdraw").Inc()
	slog.Info("treasury withdrawal", "admin", caller, "asset", a, "destination", dest, "amount", amount)
	return nil
}

// update applies fn to the current state and saves the result. The whole
// read-modify-write runs under the engine lock so no purchase observes a
// half-applied change.
func (e *Engine) update(ctx context.Context, op, caller string, fn func(*model.GameState) (*model.GameState, error)) (*model.GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.LoadGameState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}
	next, err := fn(state)
	if err != nil {
		return nil, reject(op, err)
	}
	if err := e.store.SaveGameState(ctx, next); err != nil {
		return nil, fmt.Errorf("save game state: %w", err)
	}

	metrics.AdminUpdates.WithLabelValues(op).Inc()
	slog.Info("game state updated", "op", op, "admin", caller)
	return next, nil
}
