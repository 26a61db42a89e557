package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"escrowflow/money"
)

var (
	// ErrNotFound signals the referenced account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrInsufficientFunds signals a balance check failed before a debit.
	ErrInsufficientFunds = errors.New("account: insufficient funds")
	// ErrEmailTaken signals the email uniqueness constraint fired.
	ErrEmailTaken = errors.New("account: email already registered")
)

// Repository provides access to account rows. Balance mutations take an open
// pgx.Tx so they share the commit boundary of the operation that caused them;
// plain reads go through the pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create provisions a new account with a zero balance.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Account, error) {
	const query = `
		INSERT INTO accounts (email, password_hash, role, balance)
		VALUES ($1, $2, $3, 0)
		RETURNING id, email, password_hash, role, balance::text, created_at
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, params.Email, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("account: create: %w", err)
	}
	return acct, nil
}

// GetByID fetches an account by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Account, error) {
	const query = `
		SELECT id, email, password_hash, role, balance::text, created_at
		FROM accounts
		WHERE id = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: query by id: %w", err)
	}
	return acct, nil
}

// GetByEmail fetches an account by email, used by the login flow.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Account, error) {
	const query = `
		SELECT id, email, password_hash, role, balance::text, created_at
		FROM accounts
		WHERE email = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: query by email: %w", err)
	}
	return acct, nil
}

// List returns up to limit accounts ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, email, password_hash, role, balance::text, created_at
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("account: list: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0, limit)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("account: scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account: iterate accounts: %w", err)
	}

	return accounts, nil
}

// LockBalance acquires the row lock on the account and returns its current
// balance. Callers must hold this lock before any conditional debit so two
// concurrent operations on the same account serialize instead of both
// passing the balance check.
func (r *Repository) LockBalance(ctx context.Context, tx pgx.Tx, id string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("account: lock balance: %w", err)
	}
	return money.Parse(raw)
}

// ApplyDelta adjusts the account balance by delta (negative for debits) and
// returns the new balance. The non-negative check constraint on the column is
// the last line of defense; callers are expected to have verified funds under
// the row lock first.
func (r *Repository) ApplyDelta(ctx context.Context, tx pgx.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2::numeric
		WHERE id = $1
		RETURNING balance::text
	`

	var raw string
	err := tx.QueryRow(ctx, query, id, money.Format(delta)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("account: apply delta: %w", err)
	}
	return money.Parse(raw)
}

// Exists reports whether the account id is present, inside the given tx.
func (r *Repository) Exists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("account: check exists: %w", err)
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct Account
		raw  string
	)
	if err := row.Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.Role, &raw, &acct.CreatedAt); err != nil {
		return Account{}, err
	}
	balance, err := money.Parse(raw)
	if err != nil {
		return Account{}, err
	}
	acct.Balance = balance
	return acct, nil
}
