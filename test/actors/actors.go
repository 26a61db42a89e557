// Package actors provides concurrent workers that hammer the escrow core
// through its real services. Expected contention outcomes (insufficient
// funds, invalid state, duplicate delivery) are swallowed; anything else is
// a real failure and aborts the run.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"escrowflow/account"
	"escrowflow/escrow"
	"escrowflow/ledger"
	"escrowflow/payments"
	"escrowflow/withdrawal"
)

// Depositor funds the payer through the real deposit path and replays a
// fraction of confirmations to exercise idempotency under contention.
func Depositor(ctx context.Context, svc *payments.Service, payerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		amount := decimal.NewFromInt(int64(100 + rand.Intn(400)))
		instr, err := svc.RequestDeposit(ctx, payerID, amount, payments.MethodMobile)
		if err != nil {
			return fmt.Errorf("depositor request: %w", err)
		}

		confirmation := payments.Confirmation{
			ProviderTxID: fmt.Sprintf("STXN-%d-%d", time.Now().UnixNano(), rand.Intn(1_000_000)),
			Reference:    instr.Reference,
			Amount:       amount,
		}
		if _, err := svc.Confirm(ctx, confirmation); err != nil && !expected(err) {
			return fmt.Errorf("depositor confirm: %w", err)
		}
		// Replay some confirmations; anything but success-shaped duplicate
		// handling here is a double credit waiting to happen.
		if rand.Intn(3) == 0 {
			if _, err := svc.Confirm(ctx, confirmation); err != nil && !expected(err) {
				return fmt.Errorf("depositor replay: %w", err)
			}
		}
		sleep(20, 40)
	}
}

// Creator opens escrows from the payer to the payee. Running out of funds is
// the expected steady state once lockers outpace the depositor.
func Creator(ctx context.Context, svc *escrow.Service, payerID, payeeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := svc.Create(ctx, escrow.CreateParams{
			PayerID:     payerID,
			PayeeID:     payeeID,
			Amount:      decimal.NewFromInt(int64(50 + rand.Intn(200))),
			Description: "stress escrow",
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("creator: %w", err)
		}
		sleep(10, 20)
	}
}

// Releaser races other releasers and disputers for held escrows. Losing a
// race surfaces as ErrInvalidState, never as a double credit.
func Releaser(ctx context.Context, pool *pgxpool.Pool, svc *escrow.Service, payerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := randomEscrowByStatus(ctx, pool, payerID, "hold")
		if err != nil {
			return fmt.Errorf("releaser pick: %w", err)
		}
		if id != "" {
			if _, err := svc.Release(ctx, id, payerID); err != nil && !expected(err) {
				return fmt.Errorf("releaser: %w", err)
			}
		}
		sleep(15, 30)
	}
}

// Disputer freezes held escrows on behalf of the payee.
func Disputer(ctx context.Context, pool *pgxpool.Pool, svc *escrow.Service, payerID, payeeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := randomEscrowByStatus(ctx, pool, payerID, "hold")
		if err != nil {
			return fmt.Errorf("disputer pick: %w", err)
		}
		if id != "" {
			if _, err := svc.RaiseDispute(ctx, id, payeeID, "stress dispute"); err != nil && !expected(err) {
				return fmt.Errorf("disputer: %w", err)
			}
		}
		sleep(30, 60)
	}
}

// Resolver rules on disputed escrows with a random decision.
func Resolver(ctx context.Context, pool *pgxpool.Pool, svc *escrow.Service, payerID, arbitratorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := randomEscrowByStatus(ctx, pool, payerID, "disputed")
		if err != nil {
			return fmt.Errorf("resolver pick: %w", err)
		}
		if id != "" {
			decision := escrow.DecisionApprove
			if rand.Intn(2) == 0 {
				decision = escrow.DecisionReject
			}
			if _, err := svc.ResolveDispute(ctx, arbitratorID, id, decision); err != nil && !expected(err) {
				return fmt.Errorf("resolver: %w", err)
			}
		}
		sleep(25, 50)
	}
}

// Withdrawer reserves payee funds and randomly settles or reverses pending
// withdrawals, competing with other withdrawers for the same records.
func Withdrawer(ctx context.Context, pool *pgxpool.Pool, svc *withdrawal.Service, payeeID, arbitratorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if _, err := svc.Request(ctx, payeeID, decimal.NewFromInt(int64(20+rand.Intn(80))), "mobile", nil); err != nil && !expected(err) {
			return fmt.Errorf("withdrawer request: %w", err)
		}

		var recordID string
		err := pool.QueryRow(ctx,
			`SELECT id FROM ledger_records WHERE account_id = $1 AND kind = 'withdrawal' AND status = 'pending' ORDER BY random() LIMIT 1`,
			payeeID).Scan(&recordID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("withdrawer pick: %w", err)
		}
		if recordID != "" {
			if rand.Intn(2) == 0 {
				_, err = svc.Settle(ctx, arbitratorID, recordID)
			} else {
				_, err = svc.Reverse(ctx, arbitratorID, recordID)
			}
			if err != nil && !expected(err) {
				return fmt.Errorf("withdrawer finalize: %w", err)
			}
		}
		sleep(40, 80)
	}
}

func randomEscrowByStatus(ctx context.Context, pool *pgxpool.Pool, payerID, status string) (string, error) {
	var id string
	err := pool.QueryRow(ctx,
		`SELECT id FROM escrows WHERE payer_id = $1 AND status = $2::escrow_status ORDER BY random() LIMIT 1`,
		payerID, status).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// expected reports whether err is a legitimate contention outcome or a
// transient fault from the chaos worker severing connections.
func expected(err error) bool {
	if errors.Is(err, account.ErrInsufficientFunds) ||
		errors.Is(err, escrow.ErrInvalidState) ||
		errors.Is(err, escrow.ErrNotFound) ||
		errors.Is(err, ledger.ErrNotPending) ||
		errors.Is(err, ledger.ErrNotFound) ||
		errors.Is(err, payments.ErrDuplicateDelivery) ||
		errors.Is(err, payments.ErrUnlinkedReference) {
		return true
	}
	// Class 57 is operator intervention, what a terminated backend reports.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "57") {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	return strings.Contains(err.Error(), "conn closed") ||
		strings.Contains(err.Error(), "unexpected EOF")
}

func sleep(baseMs, jitterMs int) {
	time.Sleep(time.Duration(baseMs+rand.Intn(jitterMs)) * time.Millisecond)
}
