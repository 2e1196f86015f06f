package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atmx/scratch-engine/internal/admin"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/model"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/ratio"
)

// TablesFile is the on-disk form of the initial game state.
type TablesFile struct {
	Admin           string           `yaml:"admin"`
	Prizes          []PrizeTier      `yaml:"prizes"`
	SecondaryPrizes []SecondaryTier  `yaml:"secondary_prizes"`
	ConversionRates []ConversionRate `yaml:"conversion_rates"`
}

// PrizeTier is one row of the prize table.
type PrizeTier struct {
	Odds   uint32 `yaml:"odds"`
	Payout uint64 `yaml:"payout"`
}

// SecondaryTier is one row of the payout asset table.
type SecondaryTier struct {
	Odds  uint32 `yaml:"odds"`
	Asset string `yaml:"asset"`
}

// ConversionRate converts USD amounts into an asset.
type ConversionRate struct {
	Asset       string `yaml:"asset"`
	Numerator   uint64 `yaml:"numerator"`
	Denominator uint64 `yaml:"denominator"`
}

// DefaultTables is used when no tables file is configured. Odds are in
// parts per odds.HundredPercent; the remaining 72.9% of cells are blank.
func DefaultTables() TablesFile {
	return TablesFile{
		Admin: "admin",
		Prizes: []PrizeTier{
			{Odds: 20_000, Payout: 1_000_000},
			{Odds: 5_000, Payout: 10_000_000},
			{Odds: 2_000, Payout: 100_000_000},
			{Odds: 100, Payout: 1_000_000_000},
		},
	}
}

// LoadTables reads and parses a tables file.
func LoadTables(path string) (TablesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TablesFile{}, fmt.Errorf("read tables %s: %w", path, err)
	}
	var f TablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return TablesFile{}, fmt.Errorf("parse tables %s: %w", path, err)
	}
	return f, nil
}

// GameState validates the tables and builds the initial state. A non-empty
// adminOverride replaces the admin named in the file.
func (f TablesFile) GameState(adminOverride string) (*model.GameState, error) {
	thresholds := make([]uint32, len(f.Prizes))
	payouts := make([]uint64, len(f.Prizes))
	for i, p := range f.Prizes {
		thresholds[i], payouts[i] = p.Odds, p.Payout
	}
	prizes, err := odds.NewTable(thresholds, payouts)
	if err != nil {
		return nil, fmt.Errorf("prizes: %w", err)
	}

	secThresholds := make([]uint32, len(f.SecondaryPrizes))
	secAssets := make([]asset.ID, len(f.SecondaryPrizes))
	for i, s := range f.SecondaryPrizes {
		id, err := asset.Parse(s.Asset)
		if err != nil {
			return nil, fmt.Errorf("secondary_prizes[%d]: %w", i, err)
		}
		secThresholds[i], secAssets[i] = s.Odds, id
	}
	secondary, err := odds.NewTable(secThresholds, secAssets)
	if err != nil {
		return nil, fmt.Errorf("secondary_prizes: %w", err)
	}

	rates := make(map[asset.ID]ratio.Ratio, len(f.ConversionRates))
	for i, c := range f.ConversionRates {
		id, err := asset.Parse(c.Asset)
		if err != nil {
			return nil, fmt.Errorf("conversion_rates[%d]: %w", i, err)
		}
		r, err := ratio.New(c.Numerator, c.Denominator)
		if err != nil {
			return nil, fmt.Errorf("conversion_rates[%d]: %w", i, err)
		}
		if _, dup := rates[id]; dup {
			return nil, fmt.Errorf("conversion_rates[%d]: duplicate asset %s", i, id)
		}
		rates[id] = r
	}

	gs := &model.GameState{
		Admin:     f.Admin,
		Prizes:    prizes,
		Secondary: secondary,
		Rates:     rates,
	}
	if adminOverride != "" {
		gs.Admin = adminOverride
	}
	if err := admin.Validate(gs); err != nil {
		return nil, err
	}
	return gs, nil
}

// SeedState resolves the initial game state for cfg.
func SeedState(cfg GameConfig) (*model.GameState, error) {
	tables := DefaultTables()
	if cfg.TablesPath != "" {
		var err error
		if tables, err = LoadTables(cfg.TablesPath); err != nil {
			return nil, err
		}
	}
	return tables.GameState(cfg.Admin)
}
