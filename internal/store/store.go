// Package store defines the persistence interface for the scratch engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atmx/scratch-engine/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrScratchConflict is returned by SetScratched when the card's flag
	// does not hold the expected value.
	ErrScratchConflict = errors.New("store: scratched flag conflict")

	// ErrDuplicateCard is returned when inserting a card whose ID exists.
	ErrDuplicateCard = errors.New("store: duplicate card")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Game state ---

	// LoadGameState returns the singleton state, or ErrNotFound before the
	// first save.
	LoadGameState(ctx context.Context) (*model.GameState, error)

	// SaveGameState replaces the singleton state.
	SaveGameState(ctx context.Context, s *model.GameState) error

	// --- Cards ---

	// InsertCards persists a purchase batch. Either every card is stored or
	// none is.
	InsertCards(ctx context.Context, cards []model.Card) error

	// DeleteCards removes a batch stored by InsertCards whose purchase was
	// abandoned. Missing cards are ignored.
	DeleteCards(ctx context.Context, cards []model.Card) error

	// GetCard retrieves a card by its ID.
	GetCard(ctx context.Context, id string) (*model.Card, error)

	// ListCardsByBuyer returns the cards bought by an account, oldest first.
	ListCardsByBuyer(ctx context.Context, buyer string) ([]model.Card, error)

	// SetScratched flips the scratched flag from `from` to `to`, failing
	// with ErrScratchConflict when the current flag is not `from`.
	SetScratched(ctx context.Context, id string, from, to bool, at time.Time) error

	// --- Immutable event log ---

	// InsertEvent appends an event record.
	InsertEvent(ctx context.Context, rec *model.EventRecord) error

	// ListEventsByCard returns a card's events in insertion order.
	ListEventsByCard(ctx context.Context, cardID string) ([]model.EventRecord, error)
}
