package api

import (
	"context"
	"net/http"
	"time"

	"escrowflow/account"
	"escrowflow/audit"
	"escrowflow/escrow"
	"escrowflow/money"
)

// AccountReader defines the account read access the handlers need.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	List(ctx context.Context, limit int) ([]account.Account, error)
}

// AuditReader lists the audit trail for the arbitrator dashboard.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Record, error)
}

type statsResponse struct {
	TotalVolume  string `json:"total_volume"`
	OpenDisputes int    `json:"open_disputes"`
}

func (h *Handlers) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	volume, err := h.ledgerReads.PlatformVolume(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	disputes, err := h.escrowReads.CountByStatus(r.Context(), escrow.StatusDisputed)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalVolume:  money.Format(volume),
		OpenDisputes: disputes,
	})
}

func (h *Handlers) handleAdminDisputes(w http.ResponseWriter, r *http.Request) {
	escrows, err := h.escrowReads.ListByStatus(r.Context(), escrow.StatusDisputed, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowViews(escrows))
}

func (h *Handlers) handleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context(), 100)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		views = append(views, toAccountView(acct))
	}
	writeJSON(w, http.StatusOK, views)
}

type auditView struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	EntityID  *string        `json:"entity_id,omitempty"`
	NewState  map[string]any `json:"new_state,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handlers) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.auditReads.ListRecent(r.Context(), 100)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]auditView, 0, len(records))
	for _, rec := range records {
		views = append(views, auditView{
			ID:        rec.ID,
			ActorID:   rec.ActorID,
			Action:    rec.Action,
			EntityID:  rec.EntityID,
			NewState:  rec.NewState,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type reconcileResponse struct {
	AccountID   string `json:"account_id"`
	Balance     string `json:"balance"`
	LedgerTotal string `json:"ledger_total"`
	Consistent  bool   `json:"consistent"`
}

// handleAdminReconcile compares one account's stored balance against the sum
// of its completed records plus withdrawals still reserved. A mismatch means
// an atomicity bug, not an operational condition.
func (h *Handlers) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.ledgerReads.AccountDelta(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		AccountID:   acct.ID,
		Balance:     money.Format(acct.Balance),
		LedgerTotal: money.Format(total),
		Consistent:  acct.Balance.Equal(total),
	})
}
