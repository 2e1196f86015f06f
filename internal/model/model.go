// Package model defines the core domain types shared across the scratch
// engine. Amounts are unsigned integers in the smallest unit of their asset.
package model

import (
	"time"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/grid"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/ratio"
)

// GameState is the singleton configuration every purchase reads from.
// It is only replaced wholesale; a purchase works on one snapshot.
type GameState struct {
	Admin     string                   `json:"admin"`
	Prizes    odds.Table[uint64]       `json:"prizes"`
	Secondary odds.Table[asset.ID]     `json:"secondary_prizes"`
	Rates     map[asset.ID]ratio.Ratio `json:"conversion_rates"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Clone returns a copy safe to modify. Tables are immutable and shared.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Rates = make(map[asset.ID]ratio.Ratio, len(s.Rates))
	for k, v := range s.Rates {
		c.Rates[k] = v
	}
	return &c
}

// CardSummary is the outcome of a card. Everything except Scratched is
// fixed when the card is minted.
type CardSummary struct {
	Scratched    bool      `json:"scratched"`
	USDAmount    uint64    `json:"usd_amount"`
	PayoutAsset  asset.ID  `json:"payout_asset"`
	PayoutAmount uint64    `json:"payout_amount"`
	Cells        grid.Grid `json:"cells"`
}

// Card is a minted scratch card. Ownership is tracked by the token
// registry; Buyer records the original purchaser.
type Card struct {
	ID          string      `json:"id" db:"id"`
	Buyer       string      `json:"buyer" db:"buyer"`
	Summary     CardSummary `json:"summary"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ScratchedAt time.Time   `json:"scratched_at,omitempty" db:"scratched_at"`
}
