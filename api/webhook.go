package api

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"escrowflow/payments"
)

// mobileCallback mirrors the provider's C2B confirmation payload. The bill
// reference is the deposit reference we issued; TransID is the provider's
// transaction id and serves as the idempotency key.
type mobileCallback struct {
	TransID       string          `json:"TransID"`
	TransAmount   decimal.Decimal `json:"TransAmount"`
	BillRefNumber string          `json:"BillRefNumber"`
	MSISDN        string          `json:"MSISDN"`
}

type providerResult struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// handleMobileWebhook ingests the mobile-money confirmation callback. The
// provider retries on any non-zero result, so duplicates are acknowledged as
// success while processing failures return a retryable non-zero code.
// Unlinked references get their own code: retrying will not fix them, they
// need manual review.
func (h *Handlers) handleMobileWebhook(w http.ResponseWriter, r *http.Request) {
	var cb mobileCallback
	if err := decode(r, &cb); err != nil {
		writeJSON(w, http.StatusBadRequest, providerResult{ResultCode: 1, ResultDesc: "Invalid payload"})
		return
	}

	rec, err := h.payments.Confirm(r.Context(), payments.Confirmation{
		ProviderTxID: cb.TransID,
		Reference:    cb.BillRefNumber,
		Amount:       cb.TransAmount,
		PayerMSISDN:  cb.MSISDN,
	})
	switch {
	case err == nil:
		h.metrics.DepositsCredited.Inc()
		h.logger.Info("deposit credited", "record_id", rec.ID, "provider_tx_id", cb.TransID)
		writeJSON(w, http.StatusOK, providerResult{ResultCode: 0, ResultDesc: "Accepted"})
	case errors.Is(err, payments.ErrDuplicateDelivery):
		h.metrics.DuplicateDeliveries.Inc()
		h.logger.Info("duplicate delivery acknowledged", "provider_tx_id", cb.TransID)
		writeJSON(w, http.StatusOK, providerResult{ResultCode: 0, ResultDesc: "Already processed"})
	case errors.Is(err, payments.ErrInvalidConfirmation):
		writeJSON(w, http.StatusBadRequest, providerResult{ResultCode: 1, ResultDesc: "Invalid payload"})
	case errors.Is(err, payments.ErrUnlinkedReference):
		h.logger.Error("unlinked deposit reference", "reference", cb.BillRefNumber, "provider_tx_id", cb.TransID)
		writeJSON(w, http.StatusUnprocessableEntity, providerResult{ResultCode: 2, ResultDesc: "Unlinked reference"})
	default:
		h.logger.Error("webhook processing failed", "provider_tx_id", cb.TransID, "error", err)
		writeJSON(w, http.StatusInternalServerError, providerResult{ResultCode: 1, ResultDesc: "Failed"})
	}
}
