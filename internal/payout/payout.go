// Package payout decides which asset a card settles in and how much of it.
package payout

import (
	"errors"
	"fmt"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/ratio"
	"github.com/atmx/scratch-engine/internal/rng"
)

// ErrMissingConversionRate is returned when a bonus asset is drawn that has
// no registered conversion rate. The purchase must abort.
var ErrMissingConversionRate = errors.New("payout: missing conversion rate")

// Settlement is the payout attached to a card at mint time.
type Settlement struct {
	USDAmount uint64   `json:"usd_amount"`
	Asset     asset.ID `json:"payout_asset"`
	Amount    uint64   `json:"payout_amount"`
}

// Resolve draws once from secondary. A miss, or a draw of def, settles in
// def for the full USD amount; any other asset is converted with its rate.
func Resolve(
	usd uint64,
	secondary odds.Table[asset.ID],
	rates map[asset.ID]ratio.Ratio,
	def asset.ID,
	src rng.Source,
) (Settlement, error) {
	drawn, ok, err := secondary.Draw(src)
	if err != nil {
		return Settlement{}, fmt.Errorf("payout: %w", err)
	}
	if !ok || drawn == def {
		return Settlement{USDAmount: usd, Asset: def, Amount: usd}, nil
	}

	rate, ok := rates[drawn]
	if !ok || rate.IsZero() {
		return Settlement{}, fmt.Errorf("%w: %s", ErrMissingConversionRate, drawn)
	}
	amount, err := rate.Multiply(usd)
	if err != nil {
		return Settlement{}, fmt.Errorf("payout: convert %d to %s: %w", usd, drawn, err)
	}
	return Settlement{USDAmount: usd, Asset: drawn, Amount: amount}, nil
}
