// Package audit keeps the append-only log of privileged actions. Records are
// written inside the same transaction as the mutation they describe and are
// never updated or deleted.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record captures who did what to which entity, with a snapshot of the new
// state (balances before/after, free-form context).
type Record struct {
	ID        string
	ActorID   string
	Action    string
	EntityID  *string
	NewState  map[string]any
	CreatedAt time.Time
}

// AppendParams enumerates the fields required to insert a new record.
type AppendParams struct {
	ActorID  string
	Action   string
	EntityID *string
	NewState map[string]any
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts an audit record inside the active transaction.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, params AppendParams) error {
	state := params.NewState
	if state == nil {
		state = map[string]any{}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: encode state: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_records (actor_id, action, entity_id, new_state)
		VALUES ($1, $2, $3, $4::jsonb)
	`, params.ActorID, params.Action, params.EntityID, string(payload))
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// ListRecent returns the newest audit records, for the admin surface.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	const query = `
		SELECT id, actor_id, action, entity_id, new_state, created_at
		FROM audit_records
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list recent: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec   Record
			state []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.EntityID, &state, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		if len(state) > 0 {
			if err := json.Unmarshal(state, &rec.NewState); err != nil {
				return nil, fmt.Errorf("audit: decode state: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate records: %w", err)
	}

	return records, nil
}
