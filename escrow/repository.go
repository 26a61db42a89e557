package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/money"
)

const escrowColumns = `id, payer_id, payee_id, amount::text, description, status, dispute_raised, dispute_reason, dispute_resolved_at, created_at`

// Repository stores escrow rows. State transitions take an open pgx.Tx and
// assume the caller holds the row lock acquired via GetForUpdate.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a new escrow in HOLD inside the active transaction.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, params CreateParams) (Escrow, error) {
	const query = `
		INSERT INTO escrows (payer_id, payee_id, amount, description, status)
		VALUES ($1, $2, $3::numeric, $4, 'hold')
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, query,
		params.PayerID, params.PayeeID, money.Format(params.Amount), params.Description))
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: insert: %w", err)
	}
	return esc, nil
}

// GetForUpdate fetches the escrow and acquires its row lock, serializing
// concurrent transitions on the same escrow. The loser of a race re-reads the
// already-mutated status and fails its state check.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Escrow, error) {
	const query = `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`

	esc, err := scanEscrow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: get for update: %w", err)
	}
	return esc, nil
}

// SetStatus applies a plain status transition inside the active transaction.
func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = $2
		WHERE id = $1
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: set status: %w", err)
	}
	return esc, nil
}

// MarkDisputed flips the escrow into DISPUTED, recording the reason.
func (r *Repository) MarkDisputed(ctx context.Context, tx pgx.Tx, id, reason string) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = 'disputed', dispute_raised = TRUE, dispute_reason = $2
		WHERE id = $1
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, query, id, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: mark disputed: %w", err)
	}
	return esc, nil
}

// MarkResolved moves a disputed escrow to its terminal status and stamps the
// resolution time.
func (r *Repository) MarkResolved(ctx context.Context, tx pgx.Tx, id string, status Status) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = $2, dispute_resolved_at = NOW()
		WHERE id = $1
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: mark resolved: %w", err)
	}
	return esc, nil
}

// GetByID fetches an escrow without locking it.
func (r *Repository) GetByID(ctx context.Context, id string) (Escrow, error) {
	const query = `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`

	esc, err := scanEscrow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: query by id: %w", err)
	}
	return esc, nil
}

// ListForParty returns escrows where the account is payer or payee, newest
// first.
func (r *Repository) ListForParty(ctx context.Context, accountID string, limit int) ([]Escrow, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return r.collect(ctx, query, accountID, limit)
}

// ListByStatus returns escrows in the given status, newest first. The admin
// surface uses it to list open disputes.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Escrow, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return r.collect(ctx, query, status, limit)
}

// CountByStatus returns the number of escrows in the given status.
func (r *Repository) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrows WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("escrow: count by status: %w", err)
	}
	return n, nil
}

func (r *Repository) collect(ctx context.Context, query string, args ...any) ([]Escrow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("escrow: list: %w", err)
	}
	defer rows.Close()

	escrows := make([]Escrow, 0, 16)
	for rows.Next() {
		esc, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("escrow: scan escrow: %w", err)
		}
		escrows = append(escrows, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate escrows: %w", err)
	}

	return escrows, nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var (
		esc Escrow
		raw string
	)
	err := row.Scan(
		&esc.ID, &esc.PayerID, &esc.PayeeID, &raw, &esc.Description,
		&esc.Status, &esc.DisputeRaised, &esc.DisputeReason,
		&esc.DisputeResolvedAt, &esc.CreatedAt,
	)
	if err != nil {
		return Escrow{}, err
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return Escrow{}, err
	}
	esc.Amount = amount
	return esc, nil
}
