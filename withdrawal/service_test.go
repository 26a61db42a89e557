package withdrawal

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"escrowflow/account"
	"escrowflow/audit"
	"escrowflow/ledger"
)

func TestRequest_Success(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payee-1": 500})
	records := &fakeLedger{}
	audits := &fakeAudits{}
	svc := NewService(pool, balances, records, audits, staticRefs{})

	rec, err := svc.Request(context.Background(), "payee-1", decimal.NewFromInt(200), "mobile", map[string]any{"msisdn": "254700000001"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != ledger.StatusPending || rec.Kind != ledger.KindWithdrawal {
		t.Errorf("unexpected record: kind=%s status=%s", rec.Kind, rec.Status)
	}
	if !rec.Amount.Equal(decimal.NewFromInt(-200)) {
		t.Errorf("expected -200 record, got %s", rec.Amount)
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected balance 300, got %s", got)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "WITHDRAWAL_REQUESTED" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

func TestRequest_InsufficientFunds(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payee-1": 30})
	records := &fakeLedger{}
	svc := NewService(pool, balances, records, &fakeAudits{}, staticRefs{})

	_, err := svc.Request(context.Background(), "payee-1", decimal.NewFromInt(50), "mobile", nil)
	if !errors.Is(err, account.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(records.appended) != 0 {
		t.Errorf("expected no ledger records, got %d", len(records.appended))
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected balance unchanged at 30, got %s", got)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestRequest_NonPositiveAmount(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{}, staticRefs{})

	_, err := svc.Request(context.Background(), "payee-1", decimal.NewFromInt(-5), "mobile", nil)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction to be started")
	}
}

func TestSettle_Success(t *testing.T) {
	pool := &fakePool{}
	records := &fakeLedger{
		pending: ledger.Record{ID: "rec-1", AccountID: "payee-1", Kind: ledger.KindWithdrawal, Status: ledger.StatusPending, Amount: decimal.NewFromInt(-200)},
	}
	audits := &fakeAudits{}
	svc := NewService(pool, newFakeBalances(nil), records, audits, staticRefs{})

	rec, err := svc.Settle(context.Background(), "arb-1", "rec-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != ledger.StatusCompleted {
		t.Errorf("expected completed record, got %s", rec.Status)
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "WITHDRAWAL_SETTLED" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

func TestSettle_NotPending(t *testing.T) {
	pool := &fakePool{}
	records := &fakeLedger{lockErr: ledger.ErrNotPending}
	svc := NewService(pool, newFakeBalances(nil), records, &fakeAudits{}, staticRefs{})

	_, err := svc.Settle(context.Background(), "arb-1", "rec-1")
	if !errors.Is(err, ledger.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestReverse_CreditsBack(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payee-1": 300})
	records := &fakeLedger{
		pending: ledger.Record{ID: "rec-1", AccountID: "payee-1", Kind: ledger.KindWithdrawal, Status: ledger.StatusPending, Amount: decimal.NewFromInt(-200)},
	}
	audits := &fakeAudits{}
	svc := NewService(pool, balances, records, audits, staticRefs{})

	rec, err := svc.Reverse(context.Background(), "arb-1", "rec-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != ledger.StatusFailed {
		t.Errorf("expected failed record, got %s", rec.Status)
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected balance restored to 500, got %s", got)
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "WITHDRAWAL_REVERSED" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

type staticRefs struct{}

func (staticRefs) NewRef(prefix string) string { return prefix + "-TEST-0001" }

type fakeBalances struct {
	balances map[string]decimal.Decimal
}

func newFakeBalances(initial map[string]int64) *fakeBalances {
	balances := make(map[string]decimal.Decimal, len(initial))
	for id, amount := range initial {
		balances[id] = decimal.NewFromInt(amount)
	}
	return &fakeBalances{balances: balances}
}

func (f *fakeBalances) balance(id string) decimal.Decimal {
	return f.balances[id]
}

func (f *fakeBalances) LockBalance(_ context.Context, _ pgx.Tx, id string) (decimal.Decimal, error) {
	bal, ok := f.balances[id]
	if !ok {
		return decimal.Zero, account.ErrNotFound
	}
	return bal, nil
}

func (f *fakeBalances) ApplyDelta(_ context.Context, _ pgx.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	bal, ok := f.balances[id]
	if !ok {
		return decimal.Zero, account.ErrNotFound
	}
	f.balances[id] = bal.Add(delta)
	return f.balances[id], nil
}

type fakeLedger struct {
	appended []ledger.AppendParams
	pending  ledger.Record
	lockErr  error
}

func (f *fakeLedger) Append(_ context.Context, _ pgx.Tx, params ledger.AppendParams) (ledger.Record, error) {
	f.appended = append(f.appended, params)
	return ledger.Record{
		ID:          "rec-new",
		AccountID:   params.AccountID,
		Kind:        params.Kind,
		Status:      params.Status,
		Amount:      params.Amount,
		ExternalRef: params.ExternalRef,
	}, nil
}

func (f *fakeLedger) LockPendingWithdrawal(_ context.Context, _ pgx.Tx, _ string) (ledger.Record, error) {
	if f.lockErr != nil {
		return ledger.Record{}, f.lockErr
	}
	return f.pending, nil
}

func (f *fakeLedger) SetStatus(_ context.Context, _ pgx.Tx, _ string, status ledger.Status) (ledger.Record, error) {
	f.pending.Status = status
	return f.pending, nil
}

type fakeAudits struct {
	appended []audit.AppendParams
}

func (f *fakeAudits) Append(_ context.Context, _ pgx.Tx, params audit.AppendParams) error {
	f.appended = append(f.appended, params)
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
