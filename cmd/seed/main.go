// Command seed provisions a local development data set: one account per
// role, a funded payer, a pending deposit, and a sample escrow on hold. It
// drives the same services as the API so every invariant (ledger
// reconciliation included) holds on the seeded data.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"escrowflow/account"
	"escrowflow/audit"
	"escrowflow/config"
	"escrowflow/db"
	"escrowflow/escrow"
	"escrowflow/ledger"
	"escrowflow/payments"
)

const seedPassword = "password123"

func main() {
	ctx := context.Background()
	cfg := config.FromEnv()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	accounts := account.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	audits := audit.NewRepository(pool)
	escrows := escrow.NewRepository(pool)
	refs := payments.NewRefGen()

	paymentsService := payments.NewService(pool, ledgerRepo, accounts, audits, refs, payments.InstructionConfig{
		MobilePaybill: cfg.MobilePaybill,
	})
	escrowService := escrow.NewService(pool, escrows, accounts, ledgerRepo, audits)

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash seed password: %v", err)
	}

	payer := mustAccount(ctx, accounts, "payer@escrowflow.dev", string(hash), account.RolePayer)
	payee := mustAccount(ctx, accounts, "payee@escrowflow.dev", string(hash), account.RolePayee)
	mustAccount(ctx, accounts, "arbitrator@escrowflow.dev", string(hash), account.RoleArbitrator)

	// Fund the payer with 5000.00 through the real deposit flow so the
	// ledger reconciles.
	instr, err := paymentsService.RequestDeposit(ctx, payer.ID, decimal.NewFromInt(5000), payments.MethodMobile)
	if err != nil {
		log.Fatalf("request funding deposit: %v", err)
	}
	if _, err := paymentsService.Confirm(ctx, payments.Confirmation{
		ProviderTxID: refs.NewRef("SEED"),
		Reference:    instr.Reference,
		Amount:       decimal.NewFromInt(5000),
	}); err != nil {
		log.Fatalf("confirm funding deposit: %v", err)
	}

	// A pending deposit awaiting external confirmation.
	pending, err := paymentsService.RequestDeposit(ctx, payer.ID, decimal.NewFromInt(1000), payments.MethodMobile)
	if err != nil {
		log.Fatalf("request pending deposit: %v", err)
	}

	// A sample escrow already on hold.
	esc, err := escrowService.Create(ctx, escrow.CreateParams{
		PayerID:     payer.ID,
		PayeeID:     payee.ID,
		Amount:      decimal.NewFromInt(1000),
		Description: "Trade for 1 BTC via P2P",
	})
	if err != nil {
		log.Fatalf("create sample escrow: %v", err)
	}

	fmt.Printf("seeded payer=%s payee=%s escrow=%s pending_deposit_ref=%s\n",
		payer.ID, payee.ID, esc.ID, pending.Reference)
}

func mustAccount(ctx context.Context, repo *account.Repository, email, hash string, role account.Role) account.Account {
	acct, err := repo.Create(ctx, account.CreateParams{Email: email, PasswordHash: hash, Role: role})
	if err != nil {
		log.Fatalf("seed account %s: %v", email, err)
	}
	return acct
}
