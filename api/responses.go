package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"escrowflow/account"
	"escrowflow/auth"
	"escrowflow/escrow"
	"escrowflow/ledger"
	"escrowflow/payments"
	"escrowflow/withdrawal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the core error taxonomy to caller-visible codes. The
// mapping is lossless: every sentinel gets its own code so adapters and
// clients can branch without string matching.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
	case errors.Is(err, account.ErrInsufficientFunds):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "insufficient_funds", Message: err.Error()})
	case errors.Is(err, escrow.ErrInvalidState), errors.Is(err, ledger.ErrNotPending):
		writeJSON(w, http.StatusConflict, errorBody{Code: "invalid_state", Message: err.Error()})
	case errors.Is(err, escrow.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Code: "forbidden", Message: err.Error()})
	case errors.Is(err, payments.ErrUnlinkedReference):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "unlinked_reference", Message: err.Error()})
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, withdrawal.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidDecision),
		errors.Is(err, payments.ErrInvalidConfirmation),
		errors.Is(err, auth.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: err.Error()})
	case errors.Is(err, account.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorBody{Code: "email_taken", Message: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
	}
}

func decode[T any](r *http.Request, dst *T) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID extracts a UUID path parameter. Malformed ids are indistinguishable
// from absent rows for the caller, so they map to not_found without touching
// the database.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "no such resource"})
		return "", false
	}
	return id, true
}
