package api

import (
	"context"
	"net/http"

	"escrowflow/account"
	"escrowflow/auth"
)

// AuthService defines the gate operations the handlers need.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (account.Account, error)
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string      `json:"token"`
	Account accountView `json:"account"`
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	acct, err := h.auth.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Role:     account.Role(req.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("account registered", "account_id", acct.ID, "role", acct.Role)
	writeJSON(w, http.StatusCreated, toAccountView(acct))
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "malformed body"})
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:   result.Token,
		Account: toAccountView(result.Account),
	})
}

func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "missing caller"})
		return
	}

	acct, err := h.accounts.GetByID(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(acct))
}
