// Package payments handles money entering the platform: deposit instruction
// generation and the idempotent credit applied when the external provider
// confirms payment.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"escrowflow/audit"
	"escrowflow/ledger"
	"escrowflow/money"
)

var (
	// ErrUnlinkedReference signals an inbound confirmation that matches no
	// pending deposit. The funds must never be silently dropped; callers
	// route these to manual review.
	ErrUnlinkedReference = errors.New("payments: unlinked deposit reference")
	// ErrDuplicateDelivery signals the provider transaction was already
	// applied. Not a true failure: adapters acknowledge it as success.
	ErrDuplicateDelivery = errors.New("payments: duplicate delivery")
	// ErrInvalidConfirmation signals a confirmation missing required fields.
	ErrInvalidConfirmation = errors.New("payments: incomplete confirmation payload")
)

// Method is the external rail a deposit arrives through.
type Method string

const (
	MethodMobile Method = "mobile"
	MethodBank   Method = "bank"
)

// Confirmation is the normalized inbound payment notification.
type Confirmation struct {
	ProviderTxID string
	Reference    string
	Amount       decimal.Decimal
	PayerMSISDN  string
}

// Instruction tells a payer how to move money on the chosen rail so the
// platform can match the inbound confirmation back to their account.
type Instruction struct {
	Reference string
	Method    Method
	RecordID  string
	Steps     string
}

// InstructionConfig carries the rail constants rendered into instructions.
type InstructionConfig struct {
	MobilePaybill   string
	BankName        string
	BankAccountName string
	BankAccountNo   string
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LedgerStore defines the record access required by the service.
type LedgerStore interface {
	Append(ctx context.Context, tx pgx.Tx, params ledger.AppendParams) (ledger.Record, error)
	GetByExternalRef(ctx context.Context, tx pgx.Tx, ref string) (ledger.Record, error)
	LockPendingDeposit(ctx context.Context, tx pgx.Tx, ref string) (ledger.Record, error)
	Complete(ctx context.Context, tx pgx.Tx, id string, amount decimal.Decimal, externalRef string, details map[string]any) (ledger.Record, error)
}

// BalanceStore credits the deposit onto the owning account.
type BalanceStore interface {
	ApplyDelta(ctx context.Context, tx pgx.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
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
	ledger   LedgerStore
	balances BalanceStore
	audits   AuditStore
	refs     RefGenerator
	cfg      InstructionConfig
}

func NewService(pool TxBeginner, ledgerStore LedgerStore, balances BalanceStore, audits AuditStore, refs RefGenerator, cfg InstructionConfig) *Service {
	return &Service{
		pool:     pool,
		ledger:   ledgerStore,
		balances: balances,
		audits:   audits,
		refs:     refs,
		cfg:      cfg,
	}
}

// RequestDeposit creates a pending deposit record keyed by a fresh reference
// and returns the rail-specific payment instructions. The amount is a
// tracking figure; the confirmed amount from the provider is authoritative.
func (s *Service) RequestDeposit(ctx context.Context, accountID string, amount decimal.Decimal, method Method) (Instruction, error) {
	if method != MethodMobile && method != MethodBank {
		return Instruction{}, fmt.Errorf("payments: unknown deposit method %q", method)
	}
	if amount.Sign() < 0 {
		return Instruction{}, fmt.Errorf("payments: negative deposit amount")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Instruction{}, fmt.Errorf("payments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ref := s.refs.NewRef("DEP")
	rec, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		AccountID:   accountID,
		Kind:        ledger.KindDeposit,
		Status:      ledger.StatusPending,
		Amount:      amount,
		Details:     map[string]any{"method": string(method), "note": "awaiting external confirmation"},
		ExternalRef: &ref,
	})
	if err != nil {
		return Instruction{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  accountID,
		Action:   "DEPOSIT_REQUESTED",
		EntityID: &rec.ID,
		NewState: map[string]any{"reference": ref, "method": string(method)},
	}); err != nil {
		return Instruction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Instruction{}, fmt.Errorf("payments: commit deposit request: %w", err)
	}

	return Instruction{
		Reference: ref,
		Method:    method,
		RecordID:  rec.ID,
		Steps:     s.instructionSteps(method, ref),
	}, nil
}

// Confirm applies an inbound payment confirmation exactly once. A repeat of
// the same provider transaction returns the already-completed record with
// ErrDuplicateDelivery; an unmatched reference fails with
// ErrUnlinkedReference and commits nothing.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (ledger.Record, error) {
	if c.ProviderTxID == "" || c.Reference == "" {
		return ledger.Record{}, ErrInvalidConfirmation
	}
	if !money.IsPositive(c.Amount) {
		return ledger.Record{}, ErrInvalidConfirmation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("payments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Fast path: the provider tx id was already recorded, this is a replay.
	if existing, err := s.ledger.GetByExternalRef(ctx, tx, c.ProviderTxID); err == nil {
		return existing, ErrDuplicateDelivery
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Record{}, err
	}

	pending, err := s.ledger.LockPendingDeposit(ctx, tx, c.Reference)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			return ledger.Record{}, err
		}
		// The pending row may have been completed by a racing delivery that
		// committed while we waited on its lock. Re-check before declaring
		// the reference unlinked.
		if existing, err := s.ledger.GetByExternalRef(ctx, tx, c.ProviderTxID); err == nil {
			return existing, ErrDuplicateDelivery
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return ledger.Record{}, err
		}
		return ledger.Record{}, ErrUnlinkedReference
	}

	newBalance, err := s.balances.ApplyDelta(ctx, tx, pending.AccountID, c.Amount)
	if err != nil {
		return ledger.Record{}, err
	}

	details := map[string]any{
		"provider_tx_id": c.ProviderTxID,
		"bill_reference": c.Reference,
	}
	if c.PayerMSISDN != "" {
		details["msisdn"] = c.PayerMSISDN
	}
	rec, err := s.ledger.Complete(ctx, tx, pending.ID, c.Amount, c.ProviderTxID, details)
	if err != nil {
		return ledger.Record{}, err
	}

	if err := s.audits.Append(ctx, tx, audit.AppendParams{
		ActorID:  pending.AccountID,
		Action:   "DEPOSIT_CREDIT",
		EntityID: &rec.ID,
		NewState: map[string]any{
			"provider_tx_id": c.ProviderTxID,
			"amount":         money.Format(c.Amount),
			"new_balance":    money.Format(newBalance),
		},
	}); err != nil {
		return ledger.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Record{}, fmt.Errorf("payments: commit confirmation: %w", err)
	}
	return rec, nil
}

func (s *Service) instructionSteps(method Method, ref string) string {
	if method == MethodMobile {
		return fmt.Sprintf("Pay Bill to business number %s using account number %s.", s.cfg.MobilePaybill, ref)
	}
	return fmt.Sprintf("Deposit to %s, account %s (%s), quoting reference %s.",
		s.cfg.BankName, s.cfg.BankAccountNo, s.cfg.BankAccountName, ref)
}
