package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atmx/scratch-engine/internal/admin"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/ratio"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
  dev_faucet: true
redis:
  cache_ttl: 1m
game:
  treasury: house
  default_asset: "0x2::usdc::USDC"
  cost: 250
limits:
  max_cards_per_purchase: 20
`)
	t.Setenv("SCRATCH_GAME_COST", "500")
	t.Setenv("DATABASE_URL", "postgres://db/scratch")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 || !cfg.Server.DevFaucet {
		t.Errorf("server config not read: %+v", cfg.Server)
	}
	if cfg.Game.Treasury != "house" || cfg.Game.DefaultAsset != "0x2::usdc::USDC" {
		t.Errorf("game config not read: %+v", cfg.Game)
	}
	if cfg.Game.Cost != 500 {
		t.Errorf("cost = %d, want env override 500", cfg.Game.Cost)
	}
	if cfg.Database.URL != "postgres://db/scratch" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Redis.CacheTTL != time.Minute {
		t.Errorf("cache ttl = %v", cfg.Redis.CacheTTL)
	}
	if cfg.Limits.MaxCardsPerPurchase != 20 || cfg.Limits.Burst != 100 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.Addr() != ":9090" {
		t.Errorf("addr = %s", cfg.Addr())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Server: ServerConfig{Port: 8080},
		Game:   GameConfig{Treasury: "treasury", DefaultAsset: "USDC"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := base
	bad.Game.DefaultAsset = "not valid"
	if err := bad.Validate(); !errors.Is(err, asset.ErrInvalidAsset) {
		t.Errorf("expected ErrInvalidAsset, got %v", err)
	}

	bad = base
	bad.Server.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected port error")
	}

	bad = base
	bad.Game.Treasury = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected treasury error")
	}
}

func TestLoadTables(t *testing.T) {
	path := writeFile(t, "tables.yaml", `
admin: ops
prizes:
  - odds: 20000
    payout: 5
  - odds: 1000
    payout: 500
secondary_prizes:
  - odds: 10000
    asset: "0x2::sui::SUI"
conversion_rates:
  - asset: "0x2::sui::SUI"
    numerator: 1
    denominator: 2
`)
	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	gs, err := tables.GameState("")
	if err != nil {
		t.Fatalf("build state: %v", err)
	}

	if gs.Admin != "ops" {
		t.Errorf("admin = %s", gs.Admin)
	}
	if got := gs.Prizes.Values(); len(got) != 2 || got[0] != 500 || got[1] != 5 {
		t.Errorf("prizes = %v, want sorted by odds", got)
	}
	if gs.Rates["0x2::sui::SUI"] != ratio.MustNew(1, 2) {
		t.Errorf("rates = %v", gs.Rates)
	}

	overridden, err := tables.GameState("root")
	if err != nil {
		t.Fatalf("build state: %v", err)
	}
	if overridden.Admin != "root" {
		t.Errorf("admin override ignored: %s", overridden.Admin)
	}
}

func TestTablesGameState_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		tables TablesFile
		want   error
	}{
		{
			name: "odds over 100%",
			tables: TablesFile{Admin: "a", Prizes: []PrizeTier{
				{Odds: 60_000, Payout: 1}, {Odds: 50_000, Payout: 2},
			}},
			want: odds.ErrExceedsHundredPercent,
		},
		{
			name: "zero denominator",
			tables: TablesFile{Admin: "a",
				SecondaryPrizes: []SecondaryTier{{Odds: 1, Asset: "SUI"}},
				ConversionRates: []ConversionRate{{Asset: "SUI", Numerator: 1}},
			},
			want: ratio.ErrInvalidRatio,
		},
		{
			name: "secondary asset without rate",
			tables: TablesFile{Admin: "a",
				SecondaryPrizes: []SecondaryTier{{Odds: 1, Asset: "SUI"}},
			},
			want: admin.ErrMismatchedAssets,
		},
		{
			name:   "no admin",
			tables: TablesFile{},
			want:   admin.ErrEmptyAdmin,
		},
		{
			name: "bad asset",
			tables: TablesFile{Admin: "a",
				SecondaryPrizes: []SecondaryTier{{Odds: 1, Asset: "white space"}},
			},
			want: asset.ErrInvalidAsset,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tables.GameState("")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSeedState_Default(t *testing.T) {
	gs, err := SeedState(GameConfig{Admin: "boss"})
	if err != nil {
		t.Fatalf("default seed: %v", err)
	}
	if gs.Admin != "boss" || gs.Prizes.Len() != 4 || gs.Secondary.Len() != 0 {
		t.Errorf("unexpected default state %+v", gs)
	}
}
