// Package odds implements the weighted odds tables that drive every card
// outcome.
//
// A Table is a discrete distribution over values of type T expressed in
// parts per HundredPercent. Entries are consecutive buckets, ordered by
// ascending threshold; whatever mass is left over (HundredPercent minus the
// sum of thresholds) is the implicit miss.
package odds

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/atmx/scratch-engine/internal/rng"
)

// HundredPercent is the fixed-point denominator for probability mass.
const HundredPercent uint64 = 100_000

var (
	// ErrLengthMismatch is returned when thresholds and values differ in length.
	ErrLengthMismatch = errors.New("odds: thresholds and values differ in length")

	// ErrExceedsHundredPercent is returned when thresholds sum past HundredPercent.
	ErrExceedsHundredPercent = errors.New("odds: thresholds exceed 100%")

	// ErrDuplicateThreshold is returned when two entries share a threshold.
	ErrDuplicateThreshold = errors.New("odds: duplicate threshold")
)

// Entry is one bucket of a Table.
type Entry[T any] struct {
	Odds  uint32 `json:"odds"`
	Value T      `json:"value"`
}

// Table is an immutable, validated odds table. The zero value is an empty
// table that always misses.
type Table[T any] struct {
	entries []Entry[T]
	sum     uint64
}

// NewTable validates the pairs and returns a table sorted by ascending
// threshold.
func NewTable[T any](thresholds []uint32, values []T) (Table[T], error) {
	if len(thresholds) != len(values) {
		return Table[T]{}, fmt.Errorf("%w: %d thresholds, %d values",
			ErrLengthMismatch, len(thresholds), len(values))
	}

	entries := make([]Entry[T], len(thresholds))
	var sum uint64
	for i, th := range thresholds {
		entries[i] = Entry[T]{Odds: th, Value: values[i]}
		sum += uint64(th)
	}
	if sum > HundredPercent {
		return Table[T]{}, fmt.Errorf("%w: sum %d > %d", ErrExceedsHundredPercent, sum, HundredPercent)
	}

	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Odds < entries[b].Odds })
	for i := 1; i < len(entries); i++ {
		if entries[i].Odds == entries[i-1].Odds {
			return Table[T]{}, fmt.Errorf("%w: %d", ErrDuplicateThreshold, entries[i].Odds)
		}
	}

	return Table[T]{entries: entries, sum: sum}, nil
}

// MustTable is NewTable for package-level defaults and tests.
func MustTable[T any](thresholds []uint32, values []T) Table[T] {
	t, err := NewTable(thresholds, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Pick resolves a draw r in [0, HundredPercent). The running counter starts
// at r and is reduced by each entry's own threshold until it falls inside a
// bucket. Draws at or past Sum() miss.
func (t Table[T]) Pick(r uint64) (T, bool) {
	counter := r
	for _, e := range t.entries {
		w := uint64(e.Odds)
		if counter < w {
			return e.Value, true
		}
		counter -= w
	}
	var zero T
	return zero, false
}

// Draw takes one fresh value from src and resolves it with Pick.
func (t Table[T]) Draw(src rng.Source) (T, bool, error) {
	r, err := src.Draw(HundredPercent)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("odds: draw: %w", err)
	}
	v, ok := t.Pick(r)
	return v, ok, nil
}

// Len returns the number of entries.
func (t Table[T]) Len() int { return len(t.entries) }

// Sum returns the total probability mass of all entries.
func (t Table[T]) Sum() uint64 { return t.sum }

// Values returns the entry values in table order.
func (t Table[T]) Values() []T {
	out := make([]T, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Value
	}
	return out
}

// MarshalJSON encodes the table as its ordered entry list.
func (t Table[T]) MarshalJSON() ([]byte, error) {
	if t.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.entries)
}

// UnmarshalJSON decodes an entry list and validates it through NewTable.
func (t *Table[T]) UnmarshalJSON(data []byte) error {
	var raw []Entry[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	thresholds := make([]uint32, len(raw))
	values := make([]T, len(raw))
	for i, e := range raw {
		thresholds[i] = e.Odds
		values[i] = e.Value
	}
	parsed, err := NewTable(thresholds, values)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
