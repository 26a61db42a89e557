package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"escrowflow/account"
	"escrowflow/audit"
	"escrowflow/ledger"
)

func TestCreate_Success(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payer-1": 5000, "payee-1": 0})
	escrows := &fakeStore{}
	records := &fakeLedger{}
	audits := &fakeAudits{}
	svc := NewService(pool, escrows, balances, records, audits)

	esc, err := svc.Create(context.Background(), CreateParams{
		PayerID:     "payer-1",
		PayeeID:     "payee-1",
		Amount:      decimal.NewFromInt(1000),
		Description: "laptop purchase",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if esc.Status != StatusHold {
		t.Errorf("expected status hold, got %s", esc.Status)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if got := balances.balance("payer-1"); !got.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected payer balance 4000, got %s", got)
	}
	if len(records.appended) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(records.appended))
	}
	rec := records.appended[0]
	if rec.Kind != ledger.KindEscrowLock || !rec.Amount.Equal(decimal.NewFromInt(-1000)) {
		t.Errorf("unexpected lock record: kind=%s amount=%s", rec.Kind, rec.Amount)
	}
	if rec.Status != ledger.StatusCompleted {
		t.Errorf("expected completed lock record, got %s", rec.Status)
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "ESCROW_CREATED" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

func TestCreate_InsufficientFunds(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payer-1": 30, "payee-1": 0})
	records := &fakeLedger{}
	svc := NewService(pool, &fakeStore{}, balances, records, &fakeAudits{})

	_, err := svc.Create(context.Background(), CreateParams{
		PayerID: "payer-1",
		PayeeID: "payee-1",
		Amount:  decimal.NewFromInt(50),
	})
	if !errors.Is(err, account.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback to be called")
	}
	if len(records.appended) != 0 {
		t.Errorf("expected no ledger records, got %d", len(records.appended))
	}
	if got := balances.balance("payer-1"); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected balance unchanged at 30, got %s", got)
	}
}

func TestCreate_NonPositiveAmount(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, &fakeStore{}, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.Create(context.Background(), CreateParams{PayerID: "p", PayeeID: "q", Amount: decimal.Zero})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction to be started")
	}
}

func TestCreate_UnknownPayee(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payer-1": 5000})
	svc := NewService(pool, &fakeStore{}, balances, &fakeLedger{}, &fakeAudits{})

	_, err := svc.Create(context.Background(), CreateParams{
		PayerID: "payer-1",
		PayeeID: "ghost",
		Amount:  decimal.NewFromInt(100),
	})
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestRelease_Success(t *testing.T) {
	pool := &fakePool{}
	balances := newFakeBalances(map[string]int64{"payee-1": 0})
	escrows := &fakeStore{escrow: heldEscrow("esc-1", "payer-1", "payee-1", 1000)}
	records := &fakeLedger{}
	audits := &fakeAudits{}
	svc := NewService(pool, escrows, balances, records, audits)

	esc, err := svc.Release(context.Background(), "esc-1", "payer-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if esc.Status != StatusReleased {
		t.Errorf("expected status released, got %s", esc.Status)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected payee credited 1000, got %s", got)
	}
	if len(records.appended) != 1 || records.appended[0].Kind != ledger.KindEscrowRelease {
		t.Fatalf("expected one escrow_release record, got %+v", records.appended)
	}
	if !records.appended[0].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected +1000 release record, got %s", records.appended[0].Amount)
	}
}

func TestRelease_OnlyPayer(t *testing.T) {
	pool := &fakePool{}
	escrows := &fakeStore{escrow: heldEscrow("esc-1", "payer-1", "payee-1", 1000)}
	svc := NewService(pool, escrows, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.Release(context.Background(), "esc-1", "payee-1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestRelease_AlreadyReleased(t *testing.T) {
	pool := &fakePool{}
	released := heldEscrow("esc-1", "payer-1", "payee-1", 1000)
	released.Status = StatusReleased
	escrows := &fakeStore{escrow: released}
	balances := newFakeBalances(map[string]int64{"payee-1": 1000})
	records := &fakeLedger{}
	svc := NewService(pool, escrows, balances, records, &fakeAudits{})

	_, err := svc.Release(context.Background(), "esc-1", "payer-1")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected no second credit, balance %s", got)
	}
	if len(records.appended) != 0 {
		t.Errorf("expected no ledger records, got %d", len(records.appended))
	}
}

func TestRaiseDispute_ByPayee(t *testing.T) {
	pool := &fakePool{}
	escrows := &fakeStore{escrow: heldEscrow("esc-1", "payer-1", "payee-1", 200)}
	audits := &fakeAudits{}
	svc := NewService(pool, escrows, newFakeBalances(nil), &fakeLedger{}, audits)

	esc, err := svc.RaiseDispute(context.Background(), "esc-1", "payee-1", "goods never shipped")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if esc.Status != StatusDisputed || !esc.DisputeRaised {
		t.Errorf("expected disputed escrow, got %+v", esc)
	}
	if esc.DisputeReason == nil || *esc.DisputeReason != "goods never shipped" {
		t.Errorf("expected reason recorded, got %v", esc.DisputeReason)
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "DISPUTE_RAISED" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

func TestRaiseDispute_Stranger(t *testing.T) {
	pool := &fakePool{}
	escrows := &fakeStore{escrow: heldEscrow("esc-1", "payer-1", "payee-1", 200)}
	svc := NewService(pool, escrows, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.RaiseDispute(context.Background(), "esc-1", "stranger", "nope")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRaiseDispute_OnReleased(t *testing.T) {
	pool := &fakePool{}
	released := heldEscrow("esc-1", "payer-1", "payee-1", 200)
	released.Status = StatusReleased
	escrows := &fakeStore{escrow: released}
	svc := NewService(pool, escrows, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.RaiseDispute(context.Background(), "esc-1", "payer-1", "too late")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResolveDispute_Approve(t *testing.T) {
	pool := &fakePool{}
	disputed := heldEscrow("esc-1", "payer-1", "payee-1", 200)
	disputed.Status = StatusDisputed
	escrows := &fakeStore{escrow: disputed}
	balances := newFakeBalances(map[string]int64{"payer-1": 0, "payee-1": 0})
	records := &fakeLedger{}
	svc := NewService(pool, escrows, balances, records, &fakeAudits{})

	esc, err := svc.ResolveDispute(context.Background(), "arb-1", "esc-1", DecisionApprove)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if esc.Status != StatusReleased {
		t.Errorf("expected status released, got %s", esc.Status)
	}
	if esc.DisputeResolvedAt == nil {
		t.Errorf("expected resolution timestamp to be set")
	}
	if got := balances.balance("payee-1"); !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected payee credited 200, got %s", got)
	}
	if len(records.appended) != 1 || records.appended[0].Kind != ledger.KindEscrowRelease {
		t.Fatalf("expected escrow_release record, got %+v", records.appended)
	}
}

func TestResolveDispute_Reject(t *testing.T) {
	pool := &fakePool{}
	disputed := heldEscrow("esc-1", "payer-1", "payee-1", 200)
	disputed.Status = StatusDisputed
	escrows := &fakeStore{escrow: disputed}
	balances := newFakeBalances(map[string]int64{"payer-1": 0, "payee-1": 0})
	records := &fakeLedger{}
	audits := &fakeAudits{}
	svc := NewService(pool, escrows, balances, records, audits)

	esc, err := svc.ResolveDispute(context.Background(), "arb-1", "esc-1", DecisionReject)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if esc.Status != StatusRefunded {
		t.Errorf("expected status refunded, got %s", esc.Status)
	}
	if got := balances.balance("payer-1"); !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected payer credited 200, got %s", got)
	}
	if len(records.appended) != 1 || records.appended[0].Kind != ledger.KindEscrowRefund {
		t.Fatalf("expected escrow_refund record, got %+v", records.appended)
	}
	if len(audits.appended) != 1 || audits.appended[0].Action != "DISPUTE_RESOLVED_REJECT" {
		t.Errorf("unexpected audit trail: %+v", audits.appended)
	}
}

func TestResolveDispute_NotDisputed(t *testing.T) {
	pool := &fakePool{}
	escrows := &fakeStore{escrow: heldEscrow("esc-1", "payer-1", "payee-1", 200)}
	svc := NewService(pool, escrows, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.ResolveDispute(context.Background(), "arb-1", "esc-1", DecisionApprove)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResolveDispute_UnknownDecision(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, &fakeStore{}, newFakeBalances(nil), &fakeLedger{}, &fakeAudits{})

	_, err := svc.ResolveDispute(context.Background(), "arb-1", "esc-1", Decision("split"))
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction to be started")
	}
}

var fakeNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func heldEscrow(id, payerID, payeeID string, amount int64) Escrow {
	return Escrow{
		ID:      id,
		PayerID: payerID,
		PayeeID: payeeID,
		Amount:  decimal.NewFromInt(amount),
		Status:  StatusHold,
	}
}

type fakeStore struct {
	escrow Escrow
	getErr error
}

func (f *fakeStore) Insert(_ context.Context, _ pgx.Tx, params CreateParams) (Escrow, error) {
	f.escrow = Escrow{
		ID:          "esc-new",
		PayerID:     params.PayerID,
		PayeeID:     params.PayeeID,
		Amount:      params.Amount,
		Description: params.Description,
		Status:      StatusHold,
	}
	return f.escrow, nil
}

func (f *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, _ string) (Escrow, error) {
	if f.getErr != nil {
		return Escrow{}, f.getErr
	}
	return f.escrow, nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ pgx.Tx, _ string, status Status) (Escrow, error) {
	f.escrow.Status = status
	return f.escrow, nil
}

func (f *fakeStore) MarkDisputed(_ context.Context, _ pgx.Tx, _ string, reason string) (Escrow, error) {
	f.escrow.Status = StatusDisputed
	f.escrow.DisputeRaised = true
	f.escrow.DisputeReason = &reason
	return f.escrow, nil
}

func (f *fakeStore) MarkResolved(_ context.Context, _ pgx.Tx, _ string, status Status) (Escrow, error) {
	f.escrow.Status = status
	now := fakeNow
	f.escrow.DisputeResolvedAt = &now
	return f.escrow, nil
}

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

func (f *fakeBalances) Exists(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	_, ok := f.balances[id]
	return ok, nil
}

type fakeLedger struct {
	appended []ledger.AppendParams
}

func (f *fakeLedger) Append(_ context.Context, _ pgx.Tx, params ledger.AppendParams) (ledger.Record, error) {
	f.appended = append(f.appended, params)
	return ledger.Record{
		ID:        "rec-new",
		AccountID: params.AccountID,
		Kind:      params.Kind,
		Status:    params.Status,
		Amount:    params.Amount,
	}, nil
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
