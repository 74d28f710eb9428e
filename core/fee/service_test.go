package fee_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
	emailsvc "github.com/trezcool/bursar/services/email"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	"github.com/trezcool/bursar/testutil"
)

var amount = testutil.Amount

// flakyLedger fails dedicated settlements while settleDown is set, and balance overwrites while overwriteDown is set.
type flakyLedger struct {
	fee.LedgerRepository
	settleDown    int32
	overwriteDown int32
}

func (l *flakyLedger) SettleSemester(ctx context.Context, req fee.SettleRequest) (bool, error) {
	if atomic.LoadInt32(&l.settleDown) == 1 {
		return false, fee.ErrSettlementUnavailable
	}
	return l.LedgerRepository.SettleSemester(ctx, req)
}

func (l *flakyLedger) OverwriteBalance(ctx context.Context, req fee.SettleRequest, balance decimal.Decimal) error {
	if atomic.LoadInt32(&l.overwriteDown) == 1 {
		return errors.New("balance endpoint unavailable")
	}
	return l.LedgerRepository.OverwriteBalance(ctx, req, balance)
}

// failingProfiles fails semester advances while down is set.
type failingProfiles struct {
	fee.ProfileRepository
	down int32
}

func (p *failingProfiles) SetCurrentSemester(ctx context.Context, studentID string, semester int) error {
	if atomic.LoadInt32(&p.down) == 1 {
		return errors.New("student master unavailable")
	}
	return p.ProfileRepository.SetCurrentSemester(ctx, studentID, semester)
}

func newServiceWithRepos(repos fee.Repositories) *fee.Service {
	emailsvc.ResetSentMessages()
	conf := testutil.NewConfig()
	validate, _ := testutil.NewValidator()
	return fee.NewService(fee.ServiceDeps{
		Repos:    repos,
		Mailer:   emailsvc.NewConsoleServiceMock(conf),
		Validate: validate,
		Logger:   testutil.NopLogger{},
		Conf:     conf,
	})
}

func newFlakyService(t *testing.T) (*fee.Service, *inmemdb.DB, *flakyLedger) {
	db := inmemdb.NewDB()
	repos := inmemdb.NewRepositories(db)
	ledger := &flakyLedger{LedgerRepository: repos.Ledger, settleDown: 1, overwriteDown: 1}
	repos.Ledger = ledger
	return newServiceWithRepos(repos), db, ledger
}

func paidTuition(studentID string, semester int, base int64) fee.SubmitInvoice {
	return fee.SubmitInvoice{
		StudentID:   studentID,
		Semester:    semester,
		BaseAmount:  amount(base),
		Paid:        true,
		PaymentMode: fee.PaymentModeCash,
	}
}

func getProfile(t *testing.T, db *inmemdb.DB, studentID string) fee.Profile {
	p, err := inmemdb.NewProfileRepository(db).GetProfile(context.Background(), studentID)
	require.NoError(t, err)
	return p
}

func TestService_Submit_FirstSemesterSettlement(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	ctx := context.Background()

	res, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, fee.StateReconciled, res.State)
	assert.Equal(t, fee.SettleApplied, res.Settlement)
	assert.Equal(t, "INV-0001", res.Invoice.ID)
	assert.Equal(t, "2021-2022", res.Invoice.AcademicYear)
	assert.True(t, res.Invoice.Settled())
	assert.NotNil(t, res.Invoice.PaidDate)
	assert.True(t, res.Due.Due.Equal(amount(65000)), "due = %s", res.Due.Due)
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)
	assert.Empty(t, res.Notices)
	require.NotNil(t, res.Progression)
	assert.False(t, res.Progression.Triggered)

	outstanding, settled := db.SemesterOutstanding("S1", 1)
	assert.True(t, settled)
	assert.True(t, outstanding.IsZero())

	p := getProfile(t, db, "S1")
	assert.Equal(t, "INV-0001", p.FirstSemesterInvoiceID)
	assert.True(t, p.Due.Equal(amount(65000)))

	// re-saving the same paid invoice must not settle it twice
	res, err = svc.Submit(ctx, "INV-0001", paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, string(res.Settlement))
	assert.False(t, res.Due.Locked, "the first-semester invoice does not lock itself")
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)
	assert.True(t, res.Due.Due.Equal(amount(65000)), "due = %s", res.Due.Due)
}

func TestService_Submit_SecondFirstSemesterInvoiceIsLocked(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)

	draft, err := svc.Draft(ctx, "S1", 1, "")
	require.NoError(t, err)
	assert.True(t, draft.Lock.Locked)
	assert.Equal(t, fee.LockReasonFirstSemesterInvoice, draft.Lock.Reason)
	assert.True(t, draft.Lock.ReferenceAmount.Equal(amount(25000)))

	data := fee.SubmitInvoice{StudentID: "S1", Semester: 1, BaseAmount: amount(5000), FeeHead: fee.FeeHeadExam}
	res, err := svc.Submit(ctx, "", data)
	require.NoError(t, err)
	assert.Equal(t, "INV-0002", res.Invoice.ID)
	assert.True(t, res.Due.Locked)
	// locked: measured against the live balance
	assert.True(t, res.Due.Due.Equal(amount(70000)), "due = %s", res.Due.Due)
	assert.Contains(t, res.Invoice.Remarks, "First semester locked")
}

func TestService_Submit_AddOnsInflateTotalOnly(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	p := testutil.NewProfile("S1", 100000, 0, 60000)
	p.CurrentSemester = 2
	db.AddProfile(p)

	data := paidTuition("S1", 2, 20000)
	data.AddedDue = amount(3000)
	data.LateFine = amount(500)
	res, err := svc.Submit(context.Background(), "", data)
	require.NoError(t, err)

	assert.True(t, res.Invoice.Amount.Equal(amount(23500)))
	assert.True(t, res.Balance.Equal(amount(40000)), "only the tuition reduces the balance, got %s", res.Balance)
	assert.True(t, res.Due.Due.Equal(amount(40000)), "due = %s", res.Due.Due)
}

func TestService_Submit_ResolvesMissingAmount(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	p := testutil.NewProfile("S1", 100000, 0, 100000)
	p.PerSemesterFee = map[int]decimal.Decimal{1: amount(26000)}
	db.AddProfile(p)
	db.AddProfile(testutil.NewProfile("S2", 100000, 0, 100000))
	ctx := context.Background()

	res, err := svc.Submit(ctx, "", fee.SubmitInvoice{StudentID: "S1", Semester: 1})
	require.NoError(t, err)
	assert.True(t, res.Invoice.BaseAmount.Equal(amount(26000)))
	assert.False(t, res.Invoice.Paid)

	_, err = svc.Submit(ctx, "", fee.SubmitInvoice{StudentID: "S2", Semester: 1})
	require.Error(t, err)
	assert.Equal(t, fee.KindResolutionMiss, fee.KindOf(err))

	invoices, err := svc.Invoices(ctx, &fee.InvoiceFilter{StudentID: "S2"})
	require.NoError(t, err)
	assert.Empty(t, invoices, "nothing is written on a resolution miss")
}

func TestService_Submit_Validation(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 0, 100000))
	db.AddProfile(testutil.NewProfile("S2", 100000, 0, 100000))
	ctx := context.Background()

	tests := []struct {
		name      string
		invoiceID string
		data      fee.SubmitInvoice
	}{
		{name: "missing payment mode", data: fee.SubmitInvoice{StudentID: "S1", Semester: 1, BaseAmount: amount(1), Paid: true}},
		{name: "bad document", data: fee.SubmitInvoice{StudentID: "S1", Semester: 1, BaseAmount: amount(1), DocType: "pan", DocNumber: "123"}},
		{name: "unknown student", data: fee.SubmitInvoice{StudentID: "S9", Semester: 1, BaseAmount: amount(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.invoiceID, tt.data)
			require.Error(t, err)
			assert.Equal(t, fee.KindValidation, fee.KindOf(err))
		})
	}

	res, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, res.Invoice.ID, paidTuition("S2", 1, 25000))
	assert.Equal(t, fee.KindValidation, fee.KindOf(err), "the student cannot change")

	unpaid := paidTuition("S1", 1, 25000)
	unpaid.Paid = false
	_, err = svc.Submit(ctx, res.Invoice.ID, unpaid)
	assert.Equal(t, fee.KindValidation, fee.KindOf(err), "a settled invoice stays paid")

	_, err = svc.Submit(ctx, "INV-0404", paidTuition("S1", 1, 25000))
	assert.Equal(t, fee.ErrInvoiceNotFound, errors.Cause(err))
}

func TestService_Submit_SettlementFailureIsRecoverable(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db, ledger := newFlakyService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	ctx := context.Background()

	res, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.Equal(t, fee.StateCommitted, res.State)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, fee.KindSettlementFailed, res.Notices[0].Kind)
	assert.Equal(t, "payment recorded, balance not reconciled", res.Notices[0].Message)
	assert.False(t, res.Invoice.Settled())

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bursar@bursar.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "INV-0001")

	bal, err := svc.Balance(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(amount(100000)), "balance is stale until re-saved")

	// ledger back up: re-saving settles exactly once
	atomic.StoreInt32(&ledger.settleDown, 0)
	atomic.StoreInt32(&ledger.overwriteDown, 0)
	res, err = svc.Submit(ctx, res.Invoice.ID, paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.Equal(t, fee.StateReconciled, res.State)
	assert.Equal(t, fee.SettleApplied, res.Settlement)
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)

	res, err = svc.Submit(ctx, res.Invoice.ID, paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)
}

func TestService_Submit_SettledInvoiceKeepsItsSettlement(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	ctx := context.Background()

	res, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	require.True(t, res.Invoice.Settled())

	tests := []struct {
		name      string
		data      fee.SubmitInvoice
		wantField string
	}{
		{name: "other semester", data: paidTuition("S1", 2, 25000), wantField: "semester"},
		{name: "other base amount", data: paidTuition("S1", 1, 40000), wantField: "base_amount"},
		{name: "both", data: paidTuition("S1", 2, 40000), wantField: "semester"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, res.Invoice.ID, tt.data)
			require.Error(t, err)
			assert.Equal(t, fee.KindValidation, fee.KindOf(err))
			verr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "error = %v", err)
			assert.Contains(t, verr.FieldsMap(), tt.wantField)
		})
	}

	inv, err := svc.GetInvoice(ctx, res.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Semester)
	assert.True(t, inv.BaseAmount.Equal(amount(25000)))

	// semester 2 is still open: paying it is applied once
	res2, err := svc.Submit(ctx, "", paidTuition("S1", 2, 40000))
	require.NoError(t, err)
	assert.Equal(t, fee.SettleApplied, res2.Settlement)
	assert.True(t, res2.Balance.Equal(amount(35000)), "balance = %s", res2.Balance)

	// other edits of a settled invoice go through; an omitted amount keeps the settled one
	edit := paidTuition("S1", 1, 0)
	edit.Note = "receipt re-issued"
	res, err = svc.Submit(ctx, res.Invoice.ID, edit)
	require.NoError(t, err)
	assert.True(t, res.Invoice.BaseAmount.Equal(amount(25000)))
	assert.Equal(t, "receipt re-issued", res.Invoice.Note)
	assert.True(t, res.Balance.Equal(amount(35000)), "balance = %s", res.Balance)
}

func TestService_Submit_FeeHeadsOfOneSemester(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 0, 100000))
	ctx := context.Background()

	hostel := paidTuition("S1", 1, 5000)
	hostel.FeeHead = fee.FeeHeadHostel
	res, err := svc.Submit(ctx, "", hostel)
	require.NoError(t, err)
	assert.Equal(t, fee.SettleApplied, res.Settlement)
	assert.True(t, res.Balance.Equal(amount(95000)), "balance = %s", res.Balance)

	res, err = svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.Equal(t, fee.SettleApplied, res.Settlement, "the tuition payment is not swallowed by the hostel one")
	assert.True(t, res.Balance.Equal(amount(70000)), "balance = %s", res.Balance)
	assert.True(t, db.InvoiceSettled("INV-0001"))
	assert.True(t, db.InvoiceSettled("INV-0002"))

	outstanding, settled := db.SemesterOutstanding("S1", 1)
	assert.True(t, settled)
	assert.True(t, outstanding.IsZero())
}

func TestService_Submit_RetryAfterOverwrittenSettlement(t *testing.T) {
	testutil.MockNow(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	svc, db, ledger := newFlakyService(t)
	atomic.StoreInt32(&ledger.overwriteDown, 0)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	ctx := context.Background()

	res, err := svc.Submit(ctx, "", paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.Equal(t, fee.SettleOverwritten, res.Settlement)
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)
	assert.True(t, db.InvoiceSettled(res.Invoice.ID))

	outstanding, settled := db.SemesterOutstanding("S1", 1)
	assert.True(t, settled)
	assert.True(t, outstanding.IsZero())

	// the dedicated path is back: the overwritten settlement is not applied again
	atomic.StoreInt32(&ledger.settleDown, 0)
	applied, err := ledger.SettleSemester(ctx, fee.SettleRequest{
		StudentID: "S1", InvoiceID: res.Invoice.ID, Semester: 1, Amount: amount(25000),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	res, err = svc.Submit(ctx, res.Invoice.ID, paidTuition("S1", 1, 25000))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(amount(75000)), "balance = %s", res.Balance)
}

func TestService_Draft(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 10000, 100000))
	db.AddStructures(
		fee.Structure{ProgramID: "BSC", Semester: 1, FeeHead: fee.FeeHeadTuition, Amount: amount(25000)},
		fee.Structure{ProgramID: "BSC", Semester: 1, FeeHead: fee.FeeHeadExam, Amount: amount(1000)},
	)
	db.SetAcademicYear("S1", "2023-2024")
	ctx := context.Background()

	d, err := svc.Draft(ctx, " S1 ", 1, "")
	require.NoError(t, err)
	assert.Equal(t, fee.StateDraft, d.State)
	assert.Equal(t, "2023-2024", d.AcademicYear)
	assert.Equal(t, fee.SourceProgramStructure, d.Resolution.Source)
	assert.True(t, d.Resolution.Amount.Equal(amount(26000)))
	assert.True(t, d.Due.Due.Equal(amount(64000)), "due = %s", d.Due.Due)
	assert.Empty(t, d.Notices)

	d, err = svc.Draft(ctx, "S1", 4, "")
	require.NoError(t, err)
	assert.False(t, d.Resolution.Resolved())
	require.Len(t, d.Notices, 1)
	assert.Equal(t, fee.KindResolutionMiss, d.Notices[0].Kind)

	_, err = svc.Draft(ctx, "S1", 0, "")
	assert.Equal(t, fee.KindValidation, fee.KindOf(err))

	_, err = svc.Draft(ctx, "S9", 1, "")
	assert.Equal(t, fee.KindValidation, fee.KindOf(err))
}

func seedProgressedStudent(db *inmemdb.DB) {
	p := testutil.NewProfile("S1", 100000, 10000, 75000)
	p.FirstSemesterInvoiceID = "INV-0001"
	db.AddProfile(p)
	db.AddInvoices(fee.Invoice{
		ID:         "INV-0001",
		StudentID:  "S1",
		Semester:   1,
		FeeHead:    fee.FeeHeadTuition,
		BaseAmount: amount(25000),
		Amount:     amount(25000),
		DueDate:    testutil.DatePtr(2023, time.December, 15),
		PaidDate:   testutil.DatePtr(2024, time.January, 1),
		Paid:       true,
		SettledAt:  testutil.DatePtr(2024, time.January, 1),
	})
}

func TestService_Progress(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	seedProgressedStudent(db)
	db.AddStructures(fee.Structure{ProgramID: "BSC", Semester: 2, FeeHead: fee.FeeHeadTuition, Amount: amount(30000)})
	ctx := context.Background()

	tests := []struct {
		name          string
		today         time.Time
		wantDays      int
		wantTriggered bool
	}{
		{name: "181 days", today: testutil.Date(2024, time.June, 30), wantDays: 181},
		{name: "182 days boundary", today: testutil.Date(2024, time.July, 1), wantDays: 182, wantTriggered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := svc.Progress(ctx, "S1", tt.today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, prog.DaysElapsed)
			assert.Equal(t, tt.wantTriggered, prog.Triggered)
			assert.Equal(t, tt.wantTriggered, prog.Advanced)
		})
	}

	p := getProfile(t, db, "S1")
	assert.Equal(t, 2, p.CurrentSemester)

	inv, err := svc.GetInvoice(ctx, "INV-0002")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Semester)
	assert.False(t, inv.Paid)
	assert.True(t, inv.BaseAmount.Equal(amount(30000)))
	assert.Equal(t, testutil.Date(2024, time.July, 1), *inv.DueDate)
	assert.Equal(t, 2, fee.SemesterFromRemarks(inv.Remarks))

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "S1@students.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "INV-0002")

	// the new invoice's due date restarts the clock
	prog, err := svc.Progress(ctx, "S1", testutil.Date(2024, time.July, 2))
	require.NoError(t, err)
	assert.False(t, prog.Triggered)
	assert.Equal(t, 1, prog.DaysElapsed)
}

func TestService_Progress_AdvanceFailure(t *testing.T) {
	db := inmemdb.NewDB()
	repos := inmemdb.NewRepositories(db)
	profiles := &failingProfiles{ProfileRepository: repos.Profiles, down: 1}
	repos.Profiles = profiles
	svc := newServiceWithRepos(repos)
	seedProgressedStudent(db)
	db.AddStructures(fee.Structure{ProgramID: "BSC", Semester: 2, FeeHead: fee.FeeHeadTuition, Amount: amount(30000)})
	ctx := context.Background()

	_, err := svc.Progress(ctx, "S1", testutil.Date(2024, time.July, 1))
	require.Error(t, err)
	assert.Equal(t, 1, getProfile(t, db, "S1").CurrentSemester)

	invoices, err := svc.Invoices(ctx, &fee.InvoiceFilter{StudentID: "S1", Semester: 2})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	issued := invoices[0].ID

	// 182 days after the stranded invoice: the student advances, nothing is billed twice
	atomic.StoreInt32(&profiles.down, 0)
	prog, err := svc.Progress(ctx, "S1", testutil.Date(2024, time.December, 30))
	require.NoError(t, err)
	assert.True(t, prog.Advanced)
	assert.Equal(t, 2, prog.ToSemester)
	require.NotNil(t, prog.Invoice)
	assert.Equal(t, issued, prog.Invoice.ID)
	assert.Equal(t, 2, getProfile(t, db, "S1").CurrentSemester)

	invoices, err = svc.Invoices(ctx, &fee.InvoiceFilter{StudentID: "S1"})
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
}

func TestService_Progress_183Days(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	seedProgressedStudent(db)
	db.AddStructures(fee.Structure{ProgramID: "BSC", Semester: 2, FeeHead: fee.FeeHeadTuition, Amount: amount(30000)})

	prog, err := svc.Progress(context.Background(), "S1", testutil.Date(2024, time.July, 2))
	require.NoError(t, err)
	assert.Equal(t, 183, prog.DaysElapsed)
	assert.True(t, prog.Advanced)
	assert.Equal(t, 1, prog.FromSemester)
	assert.Equal(t, 2, prog.ToSemester)
}

func TestService_Progress_SchedulerMiss(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	seedProgressedStudent(db)
	ctx := context.Background()

	prog, err := svc.Progress(ctx, "S1", testutil.Date(2024, time.August, 1))
	require.NoError(t, err)
	assert.True(t, prog.Triggered)
	assert.False(t, prog.Advanced)
	assert.Nil(t, prog.Invoice)
	require.Len(t, prog.Notices, 1)
	assert.Equal(t, fee.KindSchedulerMiss, prog.Notices[0].Kind)
	assert.Equal(t, "next semester amount not found (semester 2)", prog.Notices[0].Message)

	assert.Equal(t, 1, getProfile(t, db, "S1").CurrentSemester)
	invoices, err := svc.Invoices(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestService_ProgressAll(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	seedProgressedStudent(db)
	db.AddStructures(fee.Structure{ProgramID: "BSC", Semester: 2, FeeHead: fee.FeeHeadTuition, Amount: amount(30000)})
	recent := testutil.NewProfile("S2", 100000, 0, 100000)
	recent.AdmissionDate = testutil.Date(2024, time.June, 1)
	db.AddProfile(recent)
	noDates := testutil.NewProfile("S3", 100000, 0, 100000)
	noDates.AdmissionDate = time.Time{}
	db.AddProfile(noDates)

	progs, err := svc.ProgressAll(context.Background(), testutil.Date(2024, time.July, 5))
	require.NoError(t, err)
	require.Len(t, progs, 3)

	byID := make(map[string]fee.Progression, len(progs))
	for _, prog := range progs {
		byID[prog.StudentID] = prog
	}
	assert.True(t, byID["S1"].Advanced)
	assert.False(t, byID["S2"].Triggered)
	assert.Nil(t, byID["S3"].LastRelevantDate)
	assert.False(t, byID["S3"].Triggered)
}

func TestService_Balances(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 0, 40000))
	db.AddProfileWithoutBalance(testutil.NewProfile("S2", 100000, 0, 12000))

	readings := svc.Balances(context.Background(), []string{" S1", "", "S2", "S9"})
	require.Len(t, readings, 3)
	assert.True(t, readings[0].Balance.Equal(amount(40000)))
	assert.True(t, readings[1].Balance.Equal(amount(12000)), "falls back to the profile")
	assert.Equal(t, "S9", readings[2].StudentID)
	assert.Equal(t, fee.ErrStudentNotFound.Error(), readings[2].Error)
}

func TestService_ReloadSchedules(t *testing.T) {
	svc, db := testutil.NewInmemService(t)
	db.AddProfile(testutil.NewProfile("S1", 100000, 0, 100000))
	ctx := context.Background()

	d, err := svc.Draft(ctx, "S1", 1, "")
	require.NoError(t, err)
	assert.False(t, d.Resolution.Resolved())

	db.AddStructures(fee.Structure{ProgramID: "BSC", Semester: 1, Amount: amount(25000)})
	d, err = svc.Draft(ctx, "S1", 1, "")
	require.NoError(t, err)
	assert.False(t, d.Resolution.Resolved(), "program structures are cached")

	require.NoError(t, svc.ReloadSchedules(ctx))
	d, err = svc.Draft(ctx, "S1", 1, "")
	require.NoError(t, err)
	assert.True(t, d.Resolution.Resolved())
}
