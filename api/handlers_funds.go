package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"escrowflow/ledger"
	"escrowflow/payments"
)

// WithdrawalService defines the withdrawal operations the handlers need.
type WithdrawalService interface {
	Request(ctx context.Context, payeeID string, amount decimal.Decimal, method string, details map[string]any) (ledger.Record, error)
	Settle(ctx context.Context, actorID, recordID string) (ledger.Record, error)
	Reverse(ctx context.Context, actorID, recordID string) (ledger.Record, error)
}

// PaymentsService defines the deposit operations the handlers need.
type PaymentsService interface {
	RequestDeposit(ctx context.Context, accountID string, amount decimal.Decimal, method payments.Method) (payments.Instruction, error)
	Confirm(ctx context.Context, c payments.Confirmation) (ledger.Record, error)
}

// LedgerReader defines the read access the handlers need.
type LedgerReader interface {
	ListForAccount(ctx context.Context, accountID string, limit int) ([]ledger.Record, error)
	PlatformVolume(ctx context.Context) (decimal.Decimal, error)
	AccountDelta(ctx context.Context, accountID string) (decimal.Decimal, error)
}

type withdrawalRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Details map[string]any  `json:"details"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type instructionResponse struct {
	Reference string `json:"reference"`
	Method    string `json:"method"`
	RecordID  string `json:"record_id"`
	Steps     string `json:"steps"`
}

func (h *Handlers) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req withdrawalRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	rec, err := h.withdrawals.Request(r.Context(), caller.ID, req.Amount, req.Method, req.Details)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.WithdrawalsRequested.Inc()
	h.logger.Info("withdrawal requested", "record_id", rec.ID, "payee_id", caller.ID)
	writeJSON(w, http.StatusCreated, toRecordView(rec))
}

func (h *Handlers) handleSettleWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	recordID, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.withdrawals.Settle(r.Context(), caller.ID, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(rec))
}

func (h *Handlers) handleReverseWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	recordID, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.withdrawals.Reverse(r.Context(), caller.ID, recordID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("withdrawal reversed", "record_id", rec.ID, "actor_id", caller.ID)
	writeJSON(w, http.StatusOK, toRecordView(rec))
}

func (h *Handlers) handleRequestDeposit(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req depositRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	instr, err := h.payments.RequestDeposit(r.Context(), caller.ID, req.Amount, payments.Method(req.Method))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instructionResponse{
		Reference: instr.Reference,
		Method:    string(instr.Method),
		RecordID:  instr.RecordID,
		Steps:     instr.Steps,
	})
}

func (h *Handlers) handleListLedger(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	records, err := h.ledgerReads.ListForAccount(r.Context(), caller.ID, 200)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordViews(records))
}
