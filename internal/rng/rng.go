// Package rng abstracts the randomness source used for card outcomes.
//
// Production uses crypto/rand so that outcomes cannot be predicted before a
// purchase is executed. Tests inject a seeded PCG or a fixed sequence.
package rng

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"sync"
)

var (
	// ErrZeroBound is returned when a draw is requested over an empty range.
	ErrZeroBound = errors.New("rng: bound must be positive")

	// ErrExhausted is returned by a Sequence that has no values left.
	ErrExhausted = errors.New("rng: sequence exhausted")
)

// Source draws uniform integers in [0, bound).
type Source interface {
	Draw(bound uint64) (uint64, error)
}

type cryptoSource struct{}

// Crypto returns the default source backed by crypto/rand.
func Crypto() Source { return cryptoSource{} }

func (cryptoSource) Draw(bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, ErrZeroBound
	}
	v, err := rand.Int(rand.Reader, new(big.Int).SetUint64(bound))
	if err != nil {
		return 0, fmt.Errorf("rng: read entropy: %w", err)
	}
	return v.Uint64(), nil
}

// Seeded is a replayable PCG source for simulations and tests.
type Seeded struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewSeeded creates a deterministic source.
func NewSeeded(seed uint64) *Seeded {
	return &Seeded{r: mrand.New(mrand.NewPCG(seed, 0))}
}

func (s *Seeded) Draw(bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, ErrZeroBound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64N(bound), nil
}

// Sequence replays a fixed list of raw values, each reduced modulo the
// requested bound. It fails once the list is consumed.
type Sequence struct {
	mu     sync.Mutex
	values []uint64
	next   int
}

// NewSequence creates a source returning values in order.
func NewSequence(values ...uint64) *Sequence {
	return &Sequence{values: append([]uint64(nil), values...)}
}

func (s *Sequence) Draw(bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, ErrZeroBound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.values) {
		return 0, ErrExhausted
	}
	v := s.values[s.next]
	s.next++
	return v % bound, nil
}

// Used reports how many values have been consumed.
func (s *Sequence) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
