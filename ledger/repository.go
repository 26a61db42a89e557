package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"escrowflow/money"
)

var (
	// ErrNotFound signals the requested ledger record does not exist.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrDuplicateRef signals the external reference uniqueness guard fired.
	ErrDuplicateRef = errors.New("ledger: duplicate external reference")
	// ErrNotPending signals a settlement transition on a record that already
	// left the pending state.
	ErrNotPending = errors.New("ledger: record not pending")
)

const recordColumns = `id, account_id, kind, status, amount::text, details, external_ref, escrow_id, created_at`

// Repository stores ledger records. Writes take an open pgx.Tx so they commit
// or roll back together with the balance mutation that motivated them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts a new record inside the active transaction.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, params AppendParams) (Record, error) {
	const query = `
		INSERT INTO ledger_records (account_id, kind, status, amount, details, external_ref, escrow_id)
		VALUES ($1, $2, $3, $4::numeric, $5::jsonb, $6, $7)
		RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query,
		params.AccountID, params.Kind, params.Status,
		money.Format(params.Amount), toJSON(params.Details),
		params.ExternalRef, params.EscrowID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRef
		}
		return Record{}, fmt.Errorf("ledger: append: %w", err)
	}
	return rec, nil
}

// GetByExternalRef looks a record up by its idempotency key inside the active
// transaction.
func (r *Repository) GetByExternalRef(ctx context.Context, tx pgx.Tx, ref string) (Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM ledger_records WHERE external_ref = $1`

	rec, err := scanRecord(tx.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("ledger: query by external ref: %w", err)
	}
	return rec, nil
}

// LockPendingDeposit locates the unique pending deposit carrying ref and
// acquires its row lock, serializing concurrent confirmations of the same
// deposit.
func (r *Repository) LockPendingDeposit(ctx context.Context, tx pgx.Tx, ref string) (Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM ledger_records
		WHERE external_ref = $1 AND kind = 'deposit' AND status = 'pending'
		FOR UPDATE
	`

	rec, err := scanRecord(tx.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("ledger: lock pending deposit: %w", err)
	}
	return rec, nil
}

// LockPendingWithdrawal acquires the row lock on a pending withdrawal record.
func (r *Repository) LockPendingWithdrawal(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM ledger_records
		WHERE id = $1 AND kind = 'withdrawal'
		FOR UPDATE
	`

	rec, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("ledger: lock withdrawal: %w", err)
	}
	if rec.Status != StatusPending {
		return Record{}, ErrNotPending
	}
	return rec, nil
}

// Complete transitions a pending record to completed, rewriting its amount,
// external reference and details with the confirmed values. The WHERE clause
// repeats the pending check so a racing confirmation cannot complete the same
// record twice.
func (r *Repository) Complete(ctx context.Context, tx pgx.Tx, id string, amount decimal.Decimal, externalRef string, details map[string]any) (Record, error) {
	const query = `
		UPDATE ledger_records
		SET status = 'completed', amount = $2::numeric, external_ref = $3, details = $4::jsonb
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, id, money.Format(amount), externalRef, toJSON(details)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotPending
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRef
		}
		return Record{}, fmt.Errorf("ledger: complete record: %w", err)
	}
	return rec, nil
}

// SetStatus moves a pending record to a terminal settlement status.
func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Record, error) {
	const query = `
		UPDATE ledger_records
		SET status = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotPending
		}
		return Record{}, fmt.Errorf("ledger: set status: %w", err)
	}
	return rec, nil
}

// ListForAccount returns the most recent records owned by the account.
func (r *Repository) ListForAccount(ctx context.Context, accountID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	const query = `
		SELECT ` + recordColumns + `
		FROM ledger_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list for account: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate records: %w", err)
	}

	return records, nil
}

// AccountDelta sums the signed amounts that should be reflected in the
// account's balance: every completed movement plus withdrawal reservations
// still pending. Used by the reconciliation check.
func (r *Repository) AccountDelta(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM ledger_records
		WHERE account_id = $1
		  AND (status = 'completed' OR (kind = 'withdrawal' AND status = 'pending'))
	`

	var raw string
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: account delta: %w", err)
	}
	return money.Parse(raw)
}

// PlatformVolume sums the absolute amounts of all completed records, the
// headline number on the arbitrator dashboard.
func (r *Repository) PlatformVolume(ctx context.Context) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(ABS(amount)), 0)::text
		FROM ledger_records
		WHERE status = 'completed'
	`

	var raw string
	if err := r.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: platform volume: %w", err)
	}
	return money.Parse(raw)
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		raw     string
		details []byte
	)
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.Kind, &rec.Status, &raw, &details, &rec.ExternalRef, &rec.EscrowID, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return Record{}, err
	}
	rec.Amount = amount
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return Record{}, fmt.Errorf("ledger: decode details: %w", err)
		}
	}
	return rec, nil
}

func toJSON(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return string(b)
}
