// Package oracles holds SQL invariant checks over the live database. Each
// oracle selects violating rows; an empty result means the invariant holds.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_no_negative_balance",
			SQL:  `SELECT id, balance FROM accounts WHERE balance < 0`,
		},
		{
			// Every balance must equal the sum of its completed records plus
			// withdrawals still reserved (debited while pending).
			Name: "O2_balance_reconciliation",
			SQL: `SELECT a.id, a.balance, COALESCE(s.total, 0) AS ledger_total
                  FROM accounts a
                  LEFT JOIN (
                      SELECT account_id, SUM(amount) AS total
                      FROM ledger_records
                      WHERE status = 'completed'
                         OR (kind = 'withdrawal' AND status = 'pending')
                      GROUP BY account_id
                  ) s ON s.account_id = a.id
                  WHERE a.balance <> COALESCE(s.total, 0)`,
		},
		{
			Name: "O3_single_lock_per_escrow",
			SQL: `SELECT e.id, COUNT(r.id) AS locks
                  FROM escrows e
                  LEFT JOIN ledger_records r ON r.escrow_id = e.id AND r.kind = 'escrow_lock'
                  GROUP BY e.id
                  HAVING COUNT(r.id) <> 1`,
		},
		{
			// A terminal escrow settles exactly once; a live one not at all.
			Name: "O4_terminal_credit_exactly_once",
			SQL: `SELECT e.id, e.status, COUNT(r.id) AS credits
                  FROM escrows e
                  LEFT JOIN ledger_records r
                      ON r.escrow_id = e.id AND r.kind IN ('escrow_release', 'escrow_refund')
                  GROUP BY e.id, e.status
                  HAVING (e.status IN ('released', 'refunded') AND COUNT(r.id) <> 1)
                      OR (e.status IN ('hold', 'disputed') AND COUNT(r.id) <> 0)`,
		},
		{
			Name: "O5_lock_and_credit_match_escrow_amount",
			SQL: `SELECT r.id, r.kind, r.amount, e.amount AS escrow_amount
                  FROM ledger_records r
                  JOIN escrows e ON e.id = r.escrow_id
                  WHERE (r.kind = 'escrow_lock' AND r.amount <> -e.amount)
                     OR (r.kind IN ('escrow_release', 'escrow_refund') AND r.amount <> e.amount)`,
		},
		{
			Name: "O6_external_ref_unique",
			SQL: `SELECT external_ref, COUNT(*)
                  FROM ledger_records
                  WHERE external_ref IS NOT NULL
                  GROUP BY external_ref
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_resolution_implies_terminal",
			SQL: `SELECT id, status FROM escrows
                  WHERE dispute_resolved_at IS NOT NULL
                    AND status NOT IN ('released', 'refunded')`,
		},
		{
			Name: "O8_release_credits_payee_refund_credits_payer",
			SQL: `SELECT r.id, r.kind, r.account_id
                  FROM ledger_records r
                  JOIN escrows e ON e.id = r.escrow_id
                  WHERE (r.kind = 'escrow_release' AND r.account_id <> e.payee_id)
                     OR (r.kind = 'escrow_refund' AND r.account_id <> e.payer_id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
