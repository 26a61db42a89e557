package escrow

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

var (
	// ErrNotFound signals the referenced escrow does not exist.
	ErrNotFound = errors.New("escrow: not found")
	// ErrInvalidState signals the operation is illegal for the escrow's
	// current status. A second Release observes the already-mutated status
	// and fails with this, which is what prevents double-release.
	ErrInvalidState = errors.New("escrow: invalid state for operation")
	// ErrForbidden signals the caller lacks standing on this escrow.
	ErrForbidden = errors.New("escrow: caller lacks standing")
	// ErrInvalidAmount signals a non-positive escrow amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInvalidDecision signals an unknown resolution decision.
	ErrInvalidDecision = errors.New("escrow: unknown resolution decision")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the escrow row access required by the service.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, params CreateParams) (Escrow, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Escrow, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Escrow, error)
	MarkDisputed(ctx context.Context, tx pgx.Tx, id, reason string) (Escrow, error)
	MarkResolved(ctx context.Context, tx pgx.Tx, id string, status Status) (Escrow, error)
}

// BalanceStore defines the account balance access required by the service.
type BalanceStore interface {
	LockBalance(ctx context.Context, tx pgx.Tx, id string) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
	Exists(ctx context.Context, tx pgx.Tx, id string) (bool, error)
}

// LedgerStore appends funds-movement records within the active transaction.
type LedgerStore interface {
	Append(ctx context.Context, tx pgx.Tx, params ledger.AppendParams) (ledger.Record, error)
}

// AuditStore appends audit records within the active transaction.
type AuditStore interface {
	Append(ctx context.Context, tx pgx.Tx, params audit.AppendParams) error
}

// Service owns the escrow lifecycle. Every public method is one database
// transaction: either every sub-write commits or none does.
type Service struct {
	pool     TxBeginner
	escrows  Store
	balances BalanceStore
	ledger   LedgerStore
	audits   AuditStore
}

// NewService builds a Service from its store dependencies.
func NewService(pool TxBeginner, escrows Store, balances BalanceStore, ledgerStore LedgerStore, audits AuditStore) *Service {
	return &Service{
		pool:     pool,
		escrows:  escrows,
		balances: balances,
		ledger:   ledgerStore,
		audits:   audits,
	}
}

// Create opens an escrow: debits the payer by amount, inserts the escrow in
// HOLD, appends an escrow_lock ledger record of -amount and an audit record,
// all in one transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (Escrow, error) {
	if !money.IsPositive(params.Amount) {
		return Escrow{}, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	oldBalance, err := s.balances.LockBalance(ctx, tx, params.PayerID)
	if err != nil {
		return Escrow{}, err
	}
	if oldBalance.LessThan(params.Amount) {
		return Escrow{}, account.ErrInsufficientFunds
	}

	exists, err := s.balances.Exists(ctx, tx, params.PayeeID)
	if err != nil {
		return Escrow{}, err
	}
	if !exists {
		return Escrow{}, account.ErrNotFound
	}

	newBalance, err := s.balances.ApplyDelta(ctx, tx, params.PayerID, params.Amount.Neg())
	if err != nil {
		return Escrow{}, err
	}

	esc, err := s.escrows.Insert(ctx, tx, params)
	if err != nil {
		return Escrow{}, err
	}

	if _, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		AccountID: params.PayerID,
		Kind:      ledger.KindEscrowLock,
		Status:    ledger.StatusCompleted,
		Amount:    params.Amount.Neg(),
		Details:   map[string]any{"escrow_id": esc.ID},
		EscrowID:  &esc.ID,
	}); err != nil {
		return Escrow{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  params.PayerID,
		Action:   "ESCROW_CREATED",
		EntityID: &esc.ID,
		NewState: map[string]any{
			"old_balance": money.Format(oldBalance),
			"new_balance": money.Format(newBalance),
		},
	}); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit create: %w", err)
	}
	return esc, nil
}

// Release moves a HOLD escrow to RELEASED and credits the payee. Only the
// payer may voluntarily release.
func (s *Service) Release(ctx context.Context, escrowID, callerID string) (Escrow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if esc.PayerID != callerID {
		return Escrow{}, ErrForbidden
	}
	if esc.Status != StatusHold {
		return Escrow{}, ErrInvalidState
	}

	updated, err := s.escrows.SetStatus(ctx, tx, escrowID, StatusReleased)
	if err != nil {
		return Escrow{}, err
	}

	payeeBalance, err := s.balances.ApplyDelta(ctx, tx, esc.PayeeID, esc.Amount)
	if err != nil {
		return Escrow{}, err
	}

	if _, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		AccountID: esc.PayeeID,
		Kind:      ledger.KindEscrowRelease,
		Status:    ledger.StatusCompleted,
		Amount:    esc.Amount,
		Details:   map[string]any{"escrow_id": esc.ID},
		EscrowID:  &esc.ID,
	}); err != nil {
		return Escrow{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  callerID,
		Action:   "ESCROW_RELEASED",
		EntityID: &esc.ID,
		NewState: map[string]any{
			"payee_id":          esc.PayeeID,
			"payee_new_balance": money.Format(payeeBalance),
		},
	}); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit release: %w", err)
	}
	return updated, nil
}

// RaiseDispute freezes a HOLD escrow in DISPUTED. Either party may raise it;
// funds stay locked until an arbitrator resolves.
func (s *Service) RaiseDispute(ctx context.Context, escrowID, callerID, reason string) (Escrow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if esc.PayerID != callerID && esc.PayeeID != callerID {
		return Escrow{}, ErrForbidden
	}
	if esc.Status != StatusHold {
		return Escrow{}, ErrInvalidState
	}

	updated, err := s.escrows.MarkDisputed(ctx, tx, escrowID, reason)
	if err != nil {
		return Escrow{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  callerID,
		Action:   "DISPUTE_RAISED",
		EntityID: &esc.ID,
		NewState: map[string]any{"reason": reason},
	}); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit dispute: %w", err)
	}
	return updated, nil
}

// ResolveDispute applies an arbitrator's ruling to a DISPUTED escrow. Approve
// credits the payee and releases; Reject credits the payer back and refunds.
// The arbitrator role itself is enforced by the authorization gate before
// this is invoked.
func (s *Service) ResolveDispute(ctx context.Context, arbitratorID, escrowID string, decision Decision) (Escrow, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return Escrow{}, ErrInvalidDecision
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if esc.Status != StatusDisputed {
		return Escrow{}, ErrInvalidState
	}

	targetID := esc.PayeeID
	nextStatus := StatusReleased
	kind := ledger.KindEscrowRelease
	if decision == DecisionReject {
		targetID = esc.PayerID
		nextStatus = StatusRefunded
		kind = ledger.KindEscrowRefund
	}

	updated, err := s.escrows.MarkResolved(ctx, tx, escrowID, nextStatus)
	if err != nil {
		return Escrow{}, err
	}

	targetBalance, err := s.balances.ApplyDelta(ctx, tx, targetID, esc.Amount)
	if err != nil {
		return Escrow{}, err
	}

	if _, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		AccountID: targetID,
		Kind:      kind,
		Status:    ledger.StatusCompleted,
		Amount:    esc.Amount,
		Details: map[string]any{
			"escrow_id": esc.ID,
			"decision":  string(decision),
			"target_id": targetID,
		},
		EscrowID: &esc.ID,
	}); err != nil {
		return Escrow{}, err
	}

	action := "DISPUTE_RESOLVED_APPROVE"
	if decision == DecisionReject {
		action = "DISPUTE_RESOLVED_REJECT"
	}
	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  arbitratorID,
		Action:   action,
		EntityID: &esc.ID,
		NewState: map[string]any{
			"target_id":          targetID,
			"target_new_balance": money.Format(targetBalance),
		},
	}); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit resolution: %w", err)
	}
	return updated, nil
}
