// Package admin validates and applies administrative changes to the game
// state.
//
// Every function is copy-on-write: it either returns a fresh GameState with
// the change applied, or an error and leaves its input untouched. Callers
// swap the returned state in as a whole, so no reader ever sees half of an
// update.
package admin

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/model"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/ratio"
)

var (
	// ErrUnauthorized is returned when the caller is not the configured admin.
	ErrUnauthorized = errors.New("admin: caller is not the admin")

	// ErrLengthMismatch is returned when parallel input slices differ in length.
	ErrLengthMismatch = odds.ErrLengthMismatch

	// ErrOddsExceedHundredPercent is returned when odds sum past 100%.
	ErrOddsExceedHundredPercent = odds.ErrExceedsHundredPercent

	// ErrInvalidDenominator is returned for a conversion rate with a zero denominator.
	ErrInvalidDenominator = errors.New("admin: conversion rate denominator must be non-zero")

	// ErrMismatchedAssets is returned when the secondary prize assets and the
	// conversion rate assets do not line up.
	ErrMismatchedAssets = errors.New("admin: secondary prize assets and conversion rates do not match")

	// ErrZeroAmount is returned for a withdrawal of nothing.
	ErrZeroAmount = errors.New("admin: amount must be positive")

	// ErrInsufficientTreasuryBalance is returned when the treasury cannot cover a withdrawal.
	ErrInsufficientTreasuryBalance = errors.New("admin: insufficient treasury balance")

	// ErrEmptyAdmin is returned when the new admin identity is blank.
	ErrEmptyAdmin = errors.New("admin: new admin must not be empty")
)

// Authorize fails unless caller is the current admin.
func Authorize(s *model.GameState, caller string) error {
	if caller == "" || caller != s.Admin {
		return ErrUnauthorized
	}
	return nil
}

// Validate checks a state built outside this package, such as a seed file,
// against the same rules the setters enforce.
func Validate(s *model.GameState) error {
	if s.Admin == "" {
		return ErrEmptyAdmin
	}
	return matchAssets(s.Secondary, s.Rates)
}

// SetOdds replaces the prize table.
func SetOdds(s *model.GameState, caller string, thresholds []uint32, payouts []uint64, now time.Time) (*model.GameState, error) {
	if err := Authorize(s, caller); err != nil {
		return nil, err
	}
	prizes, err := odds.NewTable(thresholds, payouts)
	if err != nil {
		return nil, err
	}

	next := s.Clone()
	next.Prizes = prizes
	next.UpdatedAt = now
	return next, nil
}

// SetSecondaryPrizes replaces the secondary asset table. Every asset must
// already have a conversion rate.
func SetSecondaryPrizes(s *model.GameState, caller string, thresholds []uint32, assets []string, now time.Time) (*model.GameState, error) {
	if err := Authorize(s, caller); err != nil {
		return nil, err
	}
	table, err := secondaryTable(thresholds, assets)
	if err != nil {
		return nil, err
	}
	for _, id := range table.Values() {
		if _, ok := s.Rates[id]; !ok {
			return nil, fmt.Errorf("%w: no rate for %s", ErrMismatchedAssets, id)
		}
	}

	next := s.Clone()
	next.Secondary = table
	next.UpdatedAt = now
	return next, nil
}

// SetConversionRates replaces the rate table. The asset set must equal the
// asset set of the current secondary prize table.
func SetConversionRates(s *model.GameState, caller string, assets []string, numerators, denominators []uint64, now time.Time) (*model.GameState, error) {
	if err := Authorize(s, caller); err != nil {
		return nil, err
	}
	rates, err := rateTable(assets, numerators, denominators)
	if err != nil {
		return nil, err
	}
	if err := matchAssets(s.Secondary, rates); err != nil {
		return nil, err
	}

	next := s.Clone()
	next.Rates = rates
	next.UpdatedAt = now
	return next, nil
}

// SetPrizesAndRates replaces the secondary table and the rate table in one
// step. The two must cover exactly the same assets.
func SetPrizesAndRates(
	s *model.GameState,
	caller string,
	thresholds []uint32,
	prizeAssets []string,
	rateAssets []string,
	numerators, denominators []uint64,
	now time.Time,
) (*model.GameState, error) {
	if err := Authorize(s, caller); err != nil {
		return nil, err
	}
	table, err := secondaryTable(thresholds, prizeAssets)
	if err != nil {
		return nil, err
	}
	rates, err := rateTable(rateAssets, numerators, denominators)
	if err != nil {
		return nil, err
	}
	if err := matchAssets(table, rates); err != nil {
		return nil, err
	}

	next := s.Clone()
	next.Secondary = table
	next.Rates = rates
	next.UpdatedAt = now
	return next, nil
}

// SetAdmin hands admin rights to newAdmin.
func SetAdmin(s *model.GameState, caller, newAdmin string, now time.Time) (*model.GameState, error) {
	if err := Authorize(s, caller); err != nil {
		return nil, err
	}
	if newAdmin == "" {
		return nil, ErrEmptyAdmin
	}

	next := s.Clone()
	next.Admin = newAdmin
	next.UpdatedAt = now
	return next, nil
}

// CheckWithdraw validates a treasury withdrawal against the current balance.
func CheckWithdraw(s *model.GameState, caller string, amount, treasuryBalance uint64) error {
	if err := Authorize(s, caller); err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if treasuryBalance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientTreasuryBalance, treasuryBalance, amount)
	}
	return nil
}

func secondaryTable(thresholds []uint32, assets []string) (odds.Table[asset.ID], error) {
	if len(thresholds) != len(assets) {
		return odds.Table[asset.ID]{}, fmt.Errorf("%w: %d odds, %d assets",
			ErrLengthMismatch, len(thresholds), len(assets))
	}
	ids, err := asset.ParseAll(assets)
	if err != nil {
		return odds.Table[asset.ID]{}, err
	}
	return odds.NewTable(thresholds, ids)
}

func rateTable(assets []string, numerators, denominators []uint64) (map[asset.ID]ratio.Ratio, error) {
	if len(assets) != len(numerators) || len(assets) != len(denominators) {
		return nil, fmt.Errorf("%w: %d assets, %d numerators, %d denominators",
			ErrLengthMismatch, len(assets), len(numerators), len(denominators))
	}
	ids, err := asset.ParseAll(assets)
	if err != nil {
		return nil, err
	}

	rates := make(map[asset.ID]ratio.Ratio, len(ids))
	for i, id := range ids {
		r, err := ratio.New(numerators[i], denominators[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDenominator, id)
		}
		if _, dup := rates[id]; dup {
			return nil, fmt.Errorf("%w: duplicate rate for %s", ErrMismatchedAssets, id)
		}
		rates[id] = r
	}
	return rates, nil
}

// matchAssets requires the distinct assets of table to equal the keys of rates.
func matchAssets(table odds.Table[asset.ID], rates map[asset.ID]ratio.Ratio) error {
	want := make(map[asset.ID]bool)
	for _, id := range table.Values() {
		want[id] = true
	}
	if len(want) != len(rates) {
		return fmt.Errorf("%w: %d prize assets, %d rates", ErrMismatchedAssets, len(want), len(rates))
	}
	for id := range rates {
		if !want[id] {
			return fmt.Errorf("%w: rate for %s has no secondary prize", ErrMismatchedAssets, id)
		}
	}
	return nil
}
