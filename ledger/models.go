package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies the funds movement a record represents.
type Kind string

const (
	KindDeposit       Kind = "deposit"
	KindWithdrawal    Kind = "withdrawal"
	KindEscrowLock    Kind = "escrow_lock"
	KindEscrowRelease Kind = "escrow_release"
	// KindEscrowRefund marks the credit-back of a rejected dispute. It is a
	// distinct kind so a refund is distinguishable from a lock without
	// inspecting the amount's sign.
	KindEscrowRefund Kind = "escrow_refund"
)

// Status tracks settlement of a record. Escrow movements complete within
// their own transaction; deposits and withdrawals start pending and are
// completed or failed by a later confirmation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one immutable funds movement affecting one account's balance.
// Amounts are signed: negative for debits, positive for credits. The only
// permitted mutation is the pending-to-completed (or failed) transition of
// deposit and withdrawal records.
type Record struct {
	ID          string
	AccountID   string
	Kind        Kind
	Status      Status
	Amount      decimal.Decimal
	Details     map[string]any
	ExternalRef *string
	EscrowID    *string
	CreatedAt   time.Time
}

// AppendParams enumerates the fields required to insert a new record.
type AppendParams struct {
	AccountID   string
	Kind        Kind
	Status      Status
	Amount      decimal.Decimal
	Details     map[string]any
	ExternalRef *string
	EscrowID    *string
}
