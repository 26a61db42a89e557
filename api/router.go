package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowflow/account"
	"escrowflow/metrics"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	auth        AuthService
	verifier    TokenVerifier
	escrows     EscrowService
	escrowReads EscrowReader
	withdrawals WithdrawalService
	payments    PaymentsService
	ledgerReads LedgerReader
	accounts    AccountReader
	auditReads  AuditReader
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Deps enumerates everything the router needs.
type Deps struct {
	Auth        AuthService
	Verifier    TokenVerifier
	Escrows     EscrowService
	EscrowReads EscrowReader
	Withdrawals WithdrawalService
	Payments    PaymentsService
	LedgerReads LedgerReader
	Accounts    AccountReader
	AuditReads  AuditReader
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// New assembles the HTTP router. All JSON shaping lives here; the core
// packages stay transport-free.
func New(deps Deps) http.Handler {
	h := &Handlers{
		auth:        deps.Auth,
		verifier:    deps.Verifier,
		escrows:     deps.Escrows,
		escrowReads: deps.EscrowReads,
		withdrawals: deps.Withdrawals,
		payments:    deps.Payments,
		ledgerReads: deps.LedgerReads,
		accounts:    deps.Accounts,
		auditReads:  deps.AuditReads,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		// Provider callbacks authenticate out of band, not with bearer tokens.
		r.Post("/webhooks/mobile", h.handleMobileWebhook)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.verifier))

			r.Get("/auth/me", h.handleMe)

			r.Post("/escrows", h.handleCreateEscrow)
			r.Get("/escrows", h.handleListEscrows)
			r.Get("/escrows/{id}", h.handleGetEscrow)
			r.Post("/escrows/{id}/release", h.handleReleaseEscrow)
			r.Post("/escrows/{id}/dispute", h.handleDisputeEscrow)

			r.Post("/withdrawals", h.handleRequestWithdrawal)
			r.Post("/deposits/request", h.handleRequestDeposit)
			r.Get("/ledger", h.handleListLedger)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(account.RoleArbitrator))

				r.Post("/escrows/{id}/resolve", h.handleResolveEscrow)
				r.Post("/withdrawals/{id}/settle", h.handleSettleWithdrawal)
				r.Post("/withdrawals/{id}/reverse", h.handleReverseWithdrawal)
				r.Get("/admin/stats", h.handleAdminStats)
				r.Get("/admin/disputes", h.handleAdminDisputes)
				r.Get("/admin/accounts", h.handleAdminAccounts)
				r.Get("/admin/accounts/{id}/reconcile", h.handleAdminReconcile)
				r.Get("/admin/audit", h.handleAdminAudit)
			})
		})
	})

	return r
}
