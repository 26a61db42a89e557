package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"escrowflow/account"
	"escrowflow/api"
	"escrowflow/audit"
	"escrowflow/auth"
	"escrowflow/config"
	"escrowflow/db"
	"escrowflow/escrow"
	"escrowflow/ledger"
	"escrowflow/metrics"
	"escrowflow/payments"
	"escrowflow/withdrawal"
)

func main() {
	ctx := context.Background()
	cfg := config.FromEnv()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	accounts := account.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	audits := audit.NewRepository(pool)
	escrows := escrow.NewRepository(pool)
	refs := payments.NewRefGen()

	escrowService := escrow.NewService(pool, escrows, accounts, ledgerRepo, audits)
	withdrawalService := withdrawal.NewService(pool, accounts, ledgerRepo, audits, refs)
	paymentsService := payments.NewService(pool, ledgerRepo, accounts, audits, refs, payments.InstructionConfig{
		MobilePaybill:   cfg.MobilePaybill,
		BankName:        cfg.BankName,
		BankAccountName: cfg.BankAccountName,
		BankAccountNo:   cfg.BankAccountNo,
	})
	authService := auth.NewService(accounts, cfg.JWTSecret)

	handler := api.New(api.Deps{
		Auth:        authService,
		Verifier:    authService,
		Escrows:     escrowService,
		EscrowReads: escrows,
		Withdrawals: withdrawalService,
		Payments:    paymentsService,
		LedgerReads: ledgerRepo,
		Accounts:    accounts,
		AuditReads:  audits,
		Metrics:     metrics.New(),
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("escrowflow api listening", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
