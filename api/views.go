package api

import (
	"time"

	"escrowflow/account"
	"escrowflow/escrow"
	"escrowflow/ledger"
	"escrowflow/money"
)

// View types shape domain entities for JSON. Amounts render as fixed-point
// strings so clients never see float artifacts.

type escrowView struct {
	ID                string     `json:"id"`
	PayerID           string     `json:"payer_id"`
	PayeeID           string     `json:"payee_id"`
	Amount            string     `json:"amount"`
	Description       string     `json:"description"`
	Status            string     `json:"status"`
	DisputeRaised     bool       `json:"dispute_raised"`
	DisputeReason     *string    `json:"dispute_reason,omitempty"`
	DisputeResolvedAt *time.Time `json:"dispute_resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toEscrowView(e escrow.Escrow) escrowView {
	return escrowView{
		ID:                e.ID,
		PayerID:           e.PayerID,
		PayeeID:           e.PayeeID,
		Amount:            money.Format(e.Amount),
		Description:       e.Description,
		Status:            string(e.Status),
		DisputeRaised:     e.DisputeRaised,
		DisputeReason:     e.DisputeReason,
		DisputeResolvedAt: e.DisputeResolvedAt,
		CreatedAt:         e.CreatedAt,
	}
}

func toEscrowViews(escrows []escrow.Escrow) []escrowView {
	views := make([]escrowView, 0, len(escrows))
	for _, e := range escrows {
		views = append(views, toEscrowView(e))
	}
	return views
}

type recordView struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Amount      string         `json:"amount"`
	Details     map[string]any `json:"details,omitempty"`
	ExternalRef *string        `json:"external_ref,omitempty"`
	EscrowID    *string        `json:"escrow_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toRecordView(rec ledger.Record) recordView {
	return recordView{
		ID:          rec.ID,
		AccountID:   rec.AccountID,
		Kind:        string(rec.Kind),
		Status:      string(rec.Status),
		Amount:      money.Format(rec.Amount),
		Details:     rec.Details,
		ExternalRef: rec.ExternalRef,
		EscrowID:    rec.EscrowID,
		CreatedAt:   rec.CreatedAt,
	}
}

func toRecordViews(records []ledger.Record) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, toRecordView(rec))
	}
	return views
}

type accountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountView(a account.Account) accountView {
	return accountView{
		ID:        a.ID,
		Email:     a.Email,
		Role:      string(a.Role),
		Balance:   money.Format(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}
