package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an escrow. HOLD is the only non-terminal
// state besides DISPUTED, which resolves onward to RELEASED or REFUNDED.
// No transition ever leaves RELEASED or REFUNDED.
type Status string

const (
	StatusHold     Status = "hold"
	StatusReleased Status = "released"
	StatusDisputed Status = "disputed"
	StatusRefunded Status = "refunded"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// Decision is an arbitrator's ruling on a disputed escrow.
type Decision string

const (
	// DecisionApprove releases the locked amount to the payee.
	DecisionApprove Decision = "approve"
	// DecisionReject refunds the locked amount to the payer.
	DecisionReject Decision = "reject"
)

// Escrow is a held amount pending a release/refund decision. The amount never
// changes after creation; it equals exactly what was debited from the payer.
type Escrow struct {
	ID                string
	PayerID           string
	PayeeID           string
	Amount            decimal.Decimal
	Description       string
	Status            Status
	DisputeRaised     bool
	DisputeReason     *string
	DisputeResolvedAt *time.Time
	CreatedAt         time.Time
}

// CreateParams enumerates the fields required to open an escrow.
type CreateParams struct {
	PayerID     string
	PayeeID     string
	Amount      decimal.Decimal
	Description string
}
