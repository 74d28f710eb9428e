package fee

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLedger keeps balances and settled invoices in memory.
type stubLedger struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	settled     map[string]bool
	settleErr   error
	overwriteFn func(req SettleRequest, balance decimal.Decimal) error
	failReads   map[string]bool
}

func (s *stubLedger) GetBalance(_ context.Context, studentID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads[studentID] {
		return decimal.Zero, errors.New("balance source down")
	}
	bal, ok := s.balances[studentID]
	if !ok {
		return decimal.Zero, ErrBalanceNotFound
	}
	return bal, nil
}

func (s *stubLedger) SettleSemester(_ context.Context, req SettleRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settleErr != nil {
		return false, s.settleErr
	}
	if s.settled[req.InvoiceID] {
		return false, nil
	}
	s.settled[req.InvoiceID] = true
	s.balances[req.StudentID] = nonNegative(s.balances[req.StudentID].Sub(req.Amount))
	return true, nil
}

func (s *stubLedger) OverwriteBalance(_ context.Context, req SettleRequest, balance decimal.Decimal) error {
	if s.overwriteFn != nil {
		if err := s.overwriteFn(req, balance); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.InvoiceID != "" {
		s.settled[req.InvoiceID] = true
	}
	s.balances[req.StudentID] = balance
	return nil
}

type stubProfiles struct {
	ProfileRepository
	profiles map[string]Profile
}

func (s stubProfiles) GetProfile(_ context.Context, studentID string) (Profile, error) {
	if p, ok := s.profiles[studentID]; ok {
		return p, nil
	}
	return Profile{}, ErrStudentNotFound
}

func newStubLedger(balances map[string]decimal.Decimal) *stubLedger {
	return &stubLedger{balances: balances, settled: make(map[string]bool), failReads: make(map[string]bool)}
}

func TestLedger_Balance(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(75000), "S2": amt(-10)})
	profiles := stubProfiles{profiles: map[string]Profile{"S3": {StudentID: "S3", Balance: amt(42000)}}}
	l := NewLedger(repo, profiles, 0, nopLogger{})
	ctx := context.Background()

	bal, err := l.Balance(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(amt(75000)))

	bal, err = l.Balance(ctx, "S2")
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "negative balances are clamped")

	bal, err = l.Balance(ctx, "S3")
	require.NoError(t, err)
	assert.True(t, bal.Equal(amt(42000)), "falls back to the profile balance")

	_, err = l.Balance(ctx, "S4")
	assert.Equal(t, ErrStudentNotFound, errors.Cause(err))
}

func TestLedger_Settle_Idempotent(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(100000)})
	l := NewLedger(repo, stubProfiles{}, 0, nopLogger{})
	req := SettleRequest{StudentID: "S1", InvoiceID: "INV-0001", Semester: 1, Amount: amt(25000)}

	outcome, err := l.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SettleApplied, outcome)

	outcome, err = l.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SettleAlreadySettled, outcome)

	assert.True(t, repo.balances["S1"].Equal(amt(75000)), "balance = %s", repo.balances["S1"])
}

func TestLedger_Settle_OnePaymentPerInvoice(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(100000)})
	l := NewLedger(repo, stubProfiles{}, 0, nopLogger{})
	ctx := context.Background()

	hostel := SettleRequest{StudentID: "S1", InvoiceID: "INV-0001", Semester: 1, Amount: amt(5000)}
	tuition := SettleRequest{StudentID: "S1", InvoiceID: "INV-0002", Semester: 1, Amount: amt(25000)}

	outcome, err := l.Settle(ctx, hostel)
	require.NoError(t, err)
	assert.Equal(t, SettleApplied, outcome)

	outcome, err = l.Settle(ctx, tuition)
	require.NoError(t, err)
	assert.Equal(t, SettleApplied, outcome, "a second invoice of the same semester is applied")

	assert.True(t, repo.balances["S1"].Equal(amt(70000)), "balance = %s", repo.balances["S1"])
}

func TestLedger_Settle_RepeatAfterOverwrite(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(100000)})
	repo.settleErr = ErrSettlementUnavailable
	l := NewLedger(repo, stubProfiles{}, 0, nopLogger{})
	ctx := context.Background()
	req := SettleRequest{StudentID: "S1", InvoiceID: "INV-0001", Semester: 1, Amount: amt(25000)}

	outcome, err := l.Settle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, SettleOverwritten, outcome)

	// the dedicated path is back: the invoice was already paid through the overwrite
	repo.settleErr = nil
	outcome, err = l.Settle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, SettleAlreadySettled, outcome)
	assert.True(t, repo.balances["S1"].Equal(amt(75000)), "balance = %s", repo.balances["S1"])
}

func TestLedger_Settle_FallsBackToOverwrite(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(10000)})
	repo.settleErr = ErrSettlementUnavailable
	var gotDue decimal.Decimal
	repo.overwriteFn = func(req SettleRequest, _ decimal.Decimal) error {
		gotDue = req.Due
		return nil
	}
	l := NewLedger(repo, stubProfiles{}, 0, nopLogger{})

	outcome, err := l.Settle(context.Background(), SettleRequest{StudentID: "S1", Semester: 2, Amount: amt(25000), Due: amt(-5)})
	require.NoError(t, err)
	assert.Equal(t, SettleOverwritten, outcome)
	assert.True(t, repo.balances["S1"].IsZero(), "overwritten balance is clamped")
	assert.True(t, gotDue.IsZero(), "pushed due is clamped")
}

func TestLedger_Settle_BothPathsFail(t *testing.T) {
	repo := newStubLedger(map[string]decimal.Decimal{"S1": amt(10000)})
	repo.settleErr = ErrSettlementUnavailable
	repo.overwriteFn = func(SettleRequest, decimal.Decimal) error { return errors.New("read-only") }
	l := NewLedger(repo, stubProfiles{}, 0, nopLogger{})

	_, err := l.Settle(context.Background(), SettleRequest{StudentID: "S1", Semester: 2, Amount: amt(2500)})
	require.Error(t, err)
	assert.Equal(t, KindSettlementFailed, KindOf(err))
	assert.True(t, repo.balances["S1"].Equal(amt(10000)))
}

func TestLedger_Balances_Batched(t *testing.T) {
	balances := make(map[string]decimal.Decimal)
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("S%02d", i)
		ids = append(ids, id)
		balances[id] = amt(int64(i * 100))
	}
	repo := newStubLedger(balances)
	repo.failReads["S03"] = true
	repo.failReads["S17"] = true
	l := NewLedger(repo, stubProfiles{}, 6, nopLogger{})

	readings := l.Balances(context.Background(), ids)
	require.Len(t, readings, 20)
	for i, r := range readings {
		assert.Equal(t, ids[i], r.StudentID, "readings keep the input order")
		if r.StudentID == "S03" || r.StudentID == "S17" {
			assert.Equal(t, "balance source down", r.Error)
			continue
		}
		assert.Empty(t, r.Error)
		assert.True(t, r.Balance.Equal(amt(int64(i*100))), "%s balance = %s", r.StudentID, r.Balance)
	}
}

func TestLastRelevantDate(t *testing.T) {
	p := Profile{AdmissionDate: day(2021, 8, 15)}

	assert.Equal(t, day(2021, 8, 15), *LastRelevantDate(p, nil))
	assert.Nil(t, LastRelevantDate(Profile{}, nil))

	invoices := []Invoice{
		{DueDate: dayPtr(2023, 12, 1), PaidDate: dayPtr(2024, 1, 1)},
		{DueDate: dayPtr(2023, 6, 1)},
	}
	assert.Equal(t, day(2024, 1, 1), *LastRelevantDate(p, invoices))
}

func TestDaysBetween(t *testing.T) {
	last := day(2024, 1, 1)
	tests := []struct {
		today time.Time
		want  int
	}{
		{day(2024, 7, 2), 183},
		{day(2024, 7, 1), 182},
		{day(2024, 6, 30), 181},
		{day(2024, 7, 1).Add(23 * time.Hour), 182},
		{day(2023, 12, 31), -1},
	}
	for _, tt := range tests {
		if got := DaysBetween(last, tt.today); got != tt.want {
			t.Errorf("DaysBetween(%v, %v) = %v, want %v", last, tt.today, got, tt.want)
		}
	}
}
