package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"escrowflow/account"
	"escrowflow/escrow"
)

// EscrowService defines the state-machine operations the handlers need.
type EscrowService interface {
	Create(ctx context.Context, params escrow.CreateParams) (escrow.Escrow, error)
	Release(ctx context.Context, escrowID, callerID string) (escrow.Escrow, error)
	RaiseDispute(ctx context.Context, escrowID, callerID, reason string) (escrow.Escrow, error)
	ResolveDispute(ctx context.Context, arbitratorID, escrowID string, decision escrow.Decision) (escrow.Escrow, error)
}

// EscrowReader defines the read access the handlers need.
type EscrowReader interface {
	GetByID(ctx context.Context, id string) (escrow.Escrow, error)
	ListForParty(ctx context.Context, accountID string, limit int) ([]escrow.Escrow, error)
	ListByStatus(ctx context.Context, status escrow.Status, limit int) ([]escrow.Escrow, error)
	CountByStatus(ctx context.Context, status escrow.Status) (int, error)
}

type createEscrowRequest struct {
	PayeeID     string          `json:"payee_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Decision string `json:"decision"`
}

func (h *Handlers) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req createEscrowRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	esc, err := h.escrows.Create(r.Context(), escrow.CreateParams{
		PayerID:     caller.ID,
		PayeeID:     req.PayeeID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.EscrowsCreated.Inc()
	h.logger.Info("escrow created", "escrow_id", esc.ID, "payer_id", esc.PayerID, "amount", esc.Amount)
	writeJSON(w, http.StatusCreated, toEscrowView(esc))
}

func (h *Handlers) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	escrows, err := h.escrowReads.ListForParty(r.Context(), caller.ID, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowViews(escrows))
}

func (h *Handlers) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	escrowID, ok := pathID(w, r)
	if !ok {
		return
	}

	esc, err := h.escrowReads.GetByID(r.Context(), escrowID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Only the parties and an arbitrator may inspect an escrow.
	if esc.PayerID != caller.ID && esc.PayeeID != caller.ID && caller.Role != account.RoleArbitrator {
		writeError(w, escrow.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowView(esc))
}

func (h *Handlers) handleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	escrowID, ok := pathID(w, r)
	if !ok {
		return
	}

	esc, err := h.escrows.Release(r.Context(), escrowID, caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.EscrowsReleased.Inc()
	h.logger.Info("escrow released", "escrow_id", esc.ID, "payee_id", esc.PayeeID)
	writeJSON(w, http.StatusOK, toEscrowView(esc))
}

func (h *Handlers) handleDisputeEscrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	escrowID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req disputeRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	esc, err := h.escrows.RaiseDispute(r.Context(), escrowID, caller.ID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.DisputesRaised.Inc()
	h.logger.Info("dispute raised", "escrow_id", esc.ID, "caller_id", caller.ID)
	writeJSON(w, http.StatusOK, toEscrowView(esc))
}

func (h *Handlers) handleResolveEscrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	escrowID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	esc, err := h.escrows.ResolveDispute(r.Context(), caller.ID, escrowID, escrow.Decision(req.Decision))
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.DisputesResolved.WithLabelValues(req.Decision).Inc()
	h.logger.Info("dispute resolved", "escrow_id", esc.ID, "decision", req.Decision, "arbitrator_id", caller.ID)
	writeJSON(w, http.StatusOK, toEscrowView(esc))
}
