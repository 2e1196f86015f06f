package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/scratch-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveGameState(ctx context.Context, gs *model.GameState) error {
	if err := s.primary.SaveGameState(ctx, gs); err != nil {
		return err
	}
	s.rdb.Del(ctx, gameStateKey)
	return nil
}

func (s *CachedStore) InsertCards(ctx context.Context, cards []model.Card) error {
	if err := s.primary.InsertCards(ctx, cards); err != nil {
		return err
	}
	for i := range cards {
		s.cache(ctx, cardKey(cards[i].ID), &cards[i])
	}
	if len(cards) > 0 {
		s.rdb.Del(ctx, buyerKey(cards[0].Buyer))
	}
	return nil
}

func (s *CachedStore) DeleteCards(ctx context.Context, cards []model.Card) error {
	if err := s.primary.DeleteCards(ctx, cards); err != nil {
		return err
	}
	keys := make([]string, 0, len(cards)+1)
	for _, c := range cards {
		keys = append(keys, cardKey(c.ID))
	}
	if len(cards) > 0 {
		keys = append(keys, buyerKey(cards[0].Buyer))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

func (s *CachedStore) SetScratched(ctx context.Context, id string, from, to bool, at time.Time) error {
	if err := s.primary.SetScratched(ctx, id, from, to, at); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate. The buyer list also
	// carries the flag, so drop it too when the card is known.
	if c, err := s.primary.GetCard(ctx, id); err == nil {
		s.rdb.Del(ctx, cardKey(id), buyerKey(c.Buyer))
	} else {
		s.rdb.Del(ctx, cardKey(id))
	}
	return nil
}

func (s *CachedStore) InsertEvent(ctx context.Context, rec *model.EventRecord) error {
	return s.primary.InsertEvent(ctx, rec)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadGameState(ctx context.Context) (*model.GameState, error) {
	data, err := s.rdb.Get(ctx, gameStateKey).Bytes()
	if err == nil {
		var gs model.GameState
		if json.Unmarshal(data, &gs) == nil {
			return &gs, nil
		}
	}

	gs, err := s.primary.LoadGameState(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, gameStateKey, gs)
	return gs, nil
}

func (s *CachedStore) GetCard(ctx context.Context, id string) (*model.Card, error) {
	data, err := s.rdb.Get(ctx, cardKey(id)).Bytes()
	if err == nil {
		var c model.Card
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, cardKey(id), c)
	return c, nil
}

func (s *CachedStore) ListCardsByBuyer(ctx context.Context, buyer string) ([]model.Card, error) {
	data, err := s.rdb.Get(ctx, buyerKey(buyer)).Bytes()
	if err == nil {
		var cards []model.Card
		if json.Unmarshal(data, &cards) == nil {
			return cards, nil
		}
	}

	cards, err := s.primary.ListCardsByBuyer(ctx, buyer)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, buyerKey(buyer), cards)
	return cards, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEventsByCard(ctx context.Context, cardID string) ([]model.EventRecord, error) {
	return s.primary.ListEventsByCard(ctx, cardID)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const gameStateKey = "scratch:game_state"

func cardKey(id string) string { return fmt.Sprintf("scratch:card:%s", id) }
func buyerKey(buyer string) string { return fmt.Sprintf("scratch:buyer:%s", buyer) }
