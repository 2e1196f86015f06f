package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atmx/scratch-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	state  *model.GameState
	cards  map[string]*model.Card
	order  []string
	events []model.EventRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards: make(map[string]*model.Card),
	}
}

func (s *MemoryStore) LoadGameState(_ context.Context) (*model.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, fmt.Errorf("game state: %w", ErrNotFound)
	}
	return s.state.Clone(), nil
}

func (s *MemoryStore) SaveGameState(_ context.Context, gs *model.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = gs.Clone()
	return nil
}

func (s *MemoryStore) InsertCards(_ context.Context, cards []model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		if _, ok := s.cards[c.ID]; ok || seen[c.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateCard, c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range cards {
		// Store a copy to avoid external mutation.
		copy := c
		s.cards[c.ID] = &copy
		s.order = append(s.order, c.ID)
	}
	return nil
}

func (s *MemoryStore) DeleteCards(_ context.Context, cards []model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(cards))
	for _, c := range cards {
		drop[c.ID] = true
		delete(s.cards, c.ID)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *MemoryStore) GetCard(_ context.Context, id string) (*model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	copy := *c
	return &copy, nil
}

func (s *MemoryStore) ListCardsByBuyer(_ context.Context, buyer string) ([]model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Card
	for _, id := range s.order {
		if c := s.cards[id]; c.Buyer == buyer {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (s *MemoryStore) SetScratched(_ context.Context, id string, from, to bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[id]
	if !ok {
		return fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	if c.Summary.Scratched != from {
		return fmt.Errorf("card %s: %w", id, ErrScratchConflict)
	}
	c.Summary.Scratched = to
	if to {
		c.ScratchedAt = at
	} else {
		c.ScratchedAt = time.Time{}
	}
	return nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, rec *model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *rec)
	return nil
}

func (s *MemoryStore) ListEventsByCard(_ context.Context, cardID string) ([]model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.EventRecord
	for _, e := range s.events {
		if e.CardID == cardID {
			result = append(result, e)
		}
	}
	return result, nil
}
