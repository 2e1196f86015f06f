package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Amounts are stored as NUMERIC(20,0) so any uint64 round-trips exactly;
// the game state and card grids are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadGameState(ctx context.Context) (*model.GameState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM game_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game state: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}

	var gs model.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	return &gs, nil
}

func (s *PostgresStore) SaveGameState(ctx context.Context, gs *model.GameState) error {
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO game_state (id, state, updated_at) VALUES (1, $1::JSONB, $2)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		string(data), gs.UpdatedAt)
	return err
}

func (s *PostgresStore) InsertCards(ctx context.Context, cards []model.Card) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range cards {
		cells, err := json.Marshal(c.Summary.Cells)
		if err != nil {
			return fmt.Errorf("encode cells for %s: %w", c.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO cards (id, buyer, scratched, usd_amount, payout_asset, payout_amount, cells, created_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::JSONB, $8)`,
			c.ID, c.Buyer, c.Summary.Scratched,
			strconv.FormatUint(c.Summary.USDAmount, 10),
			string(c.Summary.PayoutAsset),
			strconv.FormatUint(c.Summary.PayoutAmount, 10),
			string(cells), c.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateCard, c.ID)
		}
		if err != nil {
			return fmt.Errorf("insert card %s: %w", c.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteCards(ctx context.Context, cards []model.Card) error {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM cards WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete cards: %w", err)
	}
	return nil
}

const cardColumns = `id, buyer, scratched, usd_amount::TEXT, payout_asset,
		        payout_amount::TEXT, cells, created_at, scratched_at`

func (s *PostgresStore) GetCard(ctx context.Context, id string) (*model.Card, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	c, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCardsByBuyer(ctx context.Context, buyer string) ([]model.Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE buyer = $1 ORDER BY created_at, id`, buyer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) SetScratched(ctx context.Context, id string, from, to bool, at time.Time) error {
	var scratchedAt *time.Time
	if to {
		scratchedAt = &at
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE cards SET scratched = $3, scratched_at = $4
		 WHERE id = $1 AND scratched = $2`,
		id, from, to, scratchedAt)
	if err != nil {
		return fmt.Errorf("set scratched %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetCard(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("card %s: %w", id, ErrScratchConflict)
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e *model.EventRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO card_events (id, kind, card_id, owner, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6)`,
		e.ID, string(e.Kind), e.CardID, e.Owner, string(e.Payload), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEventsByCard(ctx context.Context, cardID string) ([]model.EventRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, card_id, owner, payload, timestamp
		 FROM card_events WHERE card_id = $1 ORDER BY seq`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		var e model.EventRecord
		var kind string
		var payload []byte
		if err := rows.Scan(&e.ID, &kind, &e.CardID, &e.Owner, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = model.EventKind(kind)
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanCard(row pgx.Row) (*model.Card, error) {
	var c model.Card
	var usd, amount, payoutAsset string
	var cells []byte
	var scratchedAt *time.Time

	if err := row.Scan(&c.ID, &c.Buyer, &c.Summary.Scratched,
		&usd, &payoutAsset, &amount, &cells,
		&c.CreatedAt, &scratchedAt); err != nil {
		return nil, err
	}

	var err error
	if c.Summary.USDAmount, err = strconv.ParseUint(usd, 10, 64); err != nil {
		return nil, fmt.Errorf("card %s usd_amount: %w", c.ID, err)
	}
	if c.Summary.PayoutAmount, err = strconv.ParseUint(amount, 10, 64); err != nil {
		return nil, fmt.Errorf("card %s payout_amount: %w", c.ID, err)
	}
	if err := json.Unmarshal(cells, &c.Summary.Cells); err != nil {
		return nil, fmt.Errorf("card %s cells: %w", c.ID, err)
	}
	c.Summary.PayoutAsset = asset.ID(payoutAsset)
	if scratchedAt != nil {
		c.ScratchedAt = *scratchedAt
	}
	return &c, nil
}
