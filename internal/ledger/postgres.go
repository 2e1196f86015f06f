package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/scratch-engine/internal/asset"
)

// Postgres implements Ledger on the balances table. Amounts are stored as
// NUMERIC(20,0) so the full uint64 range round-trips exactly.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed ledger.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Balance(ctx context.Context, account string, a asset.ID) (uint64, error) {
	var amount string
	err := p.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE account = $1 AND asset = $2`,
		account, string(a)).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s %s: %w", account, a, err)
	}
	return strconv.ParseUint(amount, 10, 64)
}

// Transfer debits and credits inside one transaction. The conditional
// UPDATE locks the source row and refuses to go negative.
func (p *Postgres) Transfer(ctx context.Context, from, to string, a asset.ID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	amt := strconv.FormatUint(amount, 10)
	tag, err := tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $3::NUMERIC
		 WHERE account = $1 AND asset = $2 AND amount >= $3::NUMERIC`,
		from, string(a), amt)
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s cannot cover %d %s", ErrInsufficientBalance, from, amount, a)
	}
	if err := credit(ctx, tx, to, a, amt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Deposit(ctx context.Context, account string, a asset.ID, amount uint64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := credit(ctx, tx, account, a, strconv.FormatUint(amount, 10)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func credit(ctx context.Context, tx pgx.Tx, account string, a asset.ID, amount string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO balances (account, asset, amount) VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (account, asset) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		account, string(a), amount)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, account, a)
	}
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}

// PostgresRegistry implements Registry on the card_tokens table.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a PostgreSQL-backed token registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Mint(ctx context.Context, owner string, tokenIDs ...string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, id := range tokenIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO card_tokens (token_id, owner) VALUES ($1, $2)`, id, owner)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrTokenExists, id)
		}
		if err != nil {
			return fmt.Errorf("mint %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRegistry) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx,
		`SELECT owner FROM card_tokens WHERE token_id = $1`, tokenID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", tokenID, err)
	}
	return owner, nil
}

func (r *PostgresRegistry) IsOwner(ctx context.Context, tokenID, account string) (bool, error) {
	owner, err := r.OwnerOf(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return owner == account, nil
}

func (r *PostgresRegistry) TransferOwnership(ctx context.Context, tokenID, from, to string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE card_tokens SET owner = $3 WHERE token_id = $1 AND owner = $2`,
		tokenID, from, to)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", tokenID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish a missing token from a wrong owner.
	if _, err := r.OwnerOf(ctx, tokenID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s does not own %s", ErrNotTokenOwner, from, tokenID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
