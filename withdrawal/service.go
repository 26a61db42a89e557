// Package withdrawal reserves payee funds for disbursement. It only debits
// the balance and records intent; actually moving cash is a downstream
// settlement concern that later marks the record completed, or failed via
// Reverse which credits the payee back.
package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"escrowflow/account"
	"escrowflow/audit"
	"escrowflow/ledger"
	"escrowflow/money"
)

// ErrInvalidAmount signals a non-positive withdrawal amount.
var ErrInvalidAmount = errors.New("withdrawal: amount must be positive")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BalanceStore defines the account balance access required by the service.
type BalanceStore interface {
	LockBalance(ctx context.Context, tx pgx.Tx, id string) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
}

// LedgerStore defines the record access required by the service.
type LedgerStore interface {
	Append(ctx context.Context, tx pgx.Tx, params ledger.AppendParams) (ledger.Record, error)
	LockPendingWithdrawal(ctx context.Context, tx pgx.Tx, id string) (ledger.Record, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id string, status ledger.Status) (ledger.Record, error)
}

// AuditStore appends audit records within the active transaction.
type AuditStore interface {
	Append(ctx context.Context, tx pgx.Tx, params audit.AppendParams) error
}

// RefGenerator produces references unique enough to key pending records.
type RefGenerator interface {
	NewRef(prefix string) string
}

type Service struct {
	pool     TxBeginner
	balances BalanceStore
	ledger   LedgerStore
	audits   AuditStore
	refs     RefGenerator
}

func NewService(pool TxBeginner, balances BalanceStore, ledgerStore LedgerStore, audits AuditStore, refs RefGenerator) *Service {
	return &Service{
		pool:     pool,
		balances: balances,
		ledger:   ledgerStore,
		audits:   audits,
		refs:     refs,
	}
}

// Request debits the payee by amount and records a pending withdrawal, all in
// one transaction. The returned record carries a fresh external reference for
// the settlement rail.
func (s *Service) Request(ctx context.Context, payeeID string, amount decimal.Decimal, method string, details map[string]any) (ledger.Record, error) {
	if !money.IsPositive(amount) {
		return ledger.Record{}, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	oldBalance, err := s.balances.LockBalance(ctx, tx, payeeID)
	if err != nil {
		return ledger.Record{}, err
	}
	if oldBalance.LessThan(amount) {
		return ledger.Record{}, account.ErrInsufficientFunds
	}

	newBalance, err := s.balances.ApplyDelta(ctx, tx, payeeID, amount.Neg())
	if err != nil {
		return ledger.Record{}, err
	}

	ref := s.refs.NewRef("WDR")
	recDetails := map[string]any{"method": method}
	for k, v := range details {
		recDetails[k] = v
	}

	rec, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		AccountID:   payeeID,
		Kind:        ledger.KindWithdrawal,
		Status:      ledger.StatusPending,
		Amount:      amount.Neg(),
		Details:     recDetails,
		ExternalRef: &ref,
	})
	if err != nil {
		return ledger.Record{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  payeeID,
		Action:   "WITHDRAWAL_REQUESTED",
		EntityID: &rec.ID,
		NewState: map[string]any{
			"amount":      money.Format(amount),
			"old_balance": money.Format(oldBalance),
			"new_balance": money.Format(newBalance),
		},
	}); err != nil {
		return ledger.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: commit request: %w", err)
	}
	return rec, nil
}

// Settle marks a pending withdrawal completed once the rail confirms
// disbursement. The reserved funds leave the platform for good.
func (s *Service) Settle(ctx context.Context, actorID, recordID string) (ledger.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.ledger.LockPendingWithdrawal(ctx, tx, recordID); err != nil {
		return ledger.Record{}, err
	}

	rec, err := s.ledger.SetStatus(ctx, tx, recordID, ledger.StatusCompleted)
	if err != nil {
		return ledger.Record{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  actorID,
		Action:   "WITHDRAWAL_SETTLED",
		EntityID: &rec.ID,
		NewState: map[string]any{"amount": money.Format(rec.Amount)},
	}); err != nil {
		return ledger.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: commit settle: %w", err)
	}
	return rec, nil
}

// Reverse handles failed settlement: marks the pending withdrawal failed and
// credits the reserved amount back to the payee, symmetric to Request.
func (s *Service) Reverse(ctx context.Context, actorID, recordID string) (ledger.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pending, err := s.ledger.LockPendingWithdrawal(ctx, tx, recordID)
	if err != nil {
		return ledger.Record{}, err
	}

	rec, err := s.ledger.SetStatus(ctx, tx, recordID, ledger.StatusFailed)
	if err != nil {
		return ledger.Record{}, err
	}

	// The stored amount is the original debit, so crediting back is its
	// negation.
	newBalance, err := s.balances.ApplyDelta(ctx, tx, pending.AccountID, pending.Amount.Neg())
	if err != nil {
		return ledger.Record{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  actorID,
		Action:   "WITHDRAWAL_REVERSED",
		EntityID: &rec.ID,
		NewState: map[string]any{
			"credited":    money.Format(pending.Amount.Neg()),
			"new_balance": money.Format(newBalance),
		},
	}); err != nil {
		return ledger.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Record{}, fmt.Errorf("withdrawal: commit reverse: %w", err)
	}
	return rec, nil
}
