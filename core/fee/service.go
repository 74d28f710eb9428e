package fee

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

var (
	errInvalidSemester = errors.New("invalid semester")
	errStudentChanged  = errors.New("the student of an invoice cannot be changed")
	errUnpaySettled    = errors.New("a settled invoice cannot be marked unpaid")
	errSettledSemester = errors.New("the semester of a settled invoice cannot be changed")
	errSettledAmount   = errors.New("the base amount of a settled invoice cannot be changed")
)

const scheduleNotFoundMsg = "fee schedule not found"

// Invoice states
type State string

const (
	StateDraft      State = "draft"
	StateSubmitted  State = "submitted"
	StateCommitted  State = "committed"
	StateReconciled State = "reconciled"
)

type (
	ServiceInterface interface {
		Draft(ctx context.Context, studentID string, semester int, invoiceID string) (Draft, error)
		Submit(ctx context.Context, invoiceID string, data SubmitInvoice) (SubmitResult, error)
		Invoices(ctx context.Context, filter *InvoiceFilter, ordering ...core.DBOrdering) ([]Invoice, error)
		GetInvoice(ctx context.Context, id string) (Invoice, error)
		Balance(ctx context.Context, studentID string) (decimal.Decimal, error)
		Balances(ctx context.Context, studentIDs []string) []BalanceReading
		Progress(ctx context.Context, studentID string, today time.Time) (Progression, error)
		ProgressAll(ctx context.Context, today time.Time) ([]Progression, error)
		ReloadSchedules(ctx context.Context) error
	}

	ServiceDeps struct {
		Repos    Repositories
		Cache    StructureCache // optional; in-memory by default
		Mailer   core.EmailService
		Validate *validator.Validate
		Logger   core.Logger
		Conf     *core.Config
	}

	Service struct {
		repos     Repositories
		resolver  *Resolver
		years     *AcademicYearDeriver
		ledger    *Ledger
		scheduler *Scheduler
		issuer    *invoiceIssuer
		students  keyedMutex
		mailer    core.EmailService
		validate  *validator.Validate
		logger    core.Logger
		bursar    mail.Address
	}

	// Draft is a pre-filled invoice for a student's semester, computed before anything is written.
	Draft struct {
		StudentID    string          `json:"student_id"`
		Semester     int             `json:"semester"`
		AcademicYear string          `json:"academic_year"`
		Resolution   Resolution      `json:"resolution"`
		Lock         LockResult      `json:"lock"`
		Balance      decimal.Decimal `json:"balance"`
		Due          DueBreakdown    `json:"due"`
		State        State           `json:"state"`
		Notices      []Notice        `json:"notices,omitempty"`
	}

	SubmitResult struct {
		Invoice     Invoice         `json:"invoice"`
		Created     bool            `json:"created"`
		State       State           `json:"state"`
		Settlement  SettleOutcome   `json:"settlement,omitempty"`
		Balance     decimal.Decimal `json:"balance"`
		Due         DueBreakdown    `json:"due"`
		Progression *Progression    `json:"progression,omitempty"`
		Notices     []Notice        `json:"notices,omitempty"`
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(deps ServiceDeps) *Service {
	var (
		thresholdDays, batchSize int
		bursar                   mail.Address
	)
	if deps.Conf != nil {
		thresholdDays = deps.Conf.Fees.ProgressionThresholdDays
		batchSize = deps.Conf.Fees.BalanceBatchSize
		bursar = deps.Conf.BursarEmail
	}

	resolver := NewResolver(deps.Repos.Structures, deps.Cache, deps.Logger)
	years := NewAcademicYearDeriver(deps.Repos.AcademicYears, deps.Logger)
	issuer := &invoiceIssuer{repo: deps.Repos.Invoices}

	return &Service{
		repos:     deps.Repos,
		resolver:  resolver,
		years:     years,
		ledger:    NewLedger(deps.Repos.Ledger, deps.Repos.Profiles, batchSize, deps.Logger),
		scheduler: newScheduler(deps.Repos, resolver, years, issuer, deps.Mailer, thresholdDays, deps.Logger),
		issuer:    issuer,
		mailer:    deps.Mailer,
		validate:  deps.Validate,
		logger:    deps.Logger,
		bursar:    bursar,
	}
}

func (svc *Service) getProfile(ctx context.Context, studentID string) (Profile, error) {
	p, err := svc.repos.Profiles.GetProfile(ctx, studentID)
	if err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Profile{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return Profile{}, errors.Wrap(err, "getting profile")
	}
	return p, nil
}

// Draft resolves the fee, academic year, lock and due for a student's semester.
// invoiceID is the invoice being edited, if any. An unresolved fee is reported as a notice.
func (svc *Service) Draft(ctx context.Context, studentID string, semester int, invoiceID string) (Draft, error) {
	if semester < 1 {
		return Draft{}, core.NewValidationError(errInvalidSemester, core.FieldError{Field: "semester", Error: errInvalidSemester.Error()})
	}
	p, err := svc.getProfile(ctx, core.CleanString(studentID))
	if err != nil {
		return Draft{}, err
	}

	res, err := svc.resolver.Resolve(ctx, p, semester)
	if err != nil {
		return Draft{}, errors.Wrap(err, "resolving fee")
	}
	invoices, err := svc.repos.Invoices.QueryInvoices(ctx, &InvoiceFilter{StudentID: p.StudentID})
	if err != nil {
		return Draft{}, errors.Wrap(err, "querying invoices")
	}
	balance, err := svc.ledger.Balance(ctx, p.StudentID)
	if err != nil {
		return Draft{}, errors.Wrap(err, "reading balance")
	}

	d := Draft{
		StudentID:    p.StudentID,
		Semester:     semester,
		AcademicYear: svc.years.Derive(ctx, p.StudentID, p.AdmissionDate),
		Resolution:   res,
		Lock:         CheckFirstSemesterLock(p, invoices, invoiceID),
		Balance:      balance,
		State:        StateDraft,
	}
	d.Due = CalculateDue(DueInput{
		Semester:        semester,
		Lock:            d.Lock,
		Balance:         balance,
		TotalProgramFee: p.TotalProgramFee,
		Scholarship:     p.ScholarshipAmount,
		Tuition:         res.Amount,
	})
	if !res.Resolved() {
		d.Notices = append(d.Notices, Notice{Kind: KindResolutionMiss, Message: fmt.Sprintf("%s for semester %d", scheduleNotFoundMsg, semester)})
	}
	return d, nil
}

// Submit creates (empty invoiceID) or updates an invoice, taking it through
// submitted -> committed -> reconciled. Nothing is written unless validation passes.
//
// Failures after the invoice is committed are not rolled back: the result keeps the last
// state reached and carries a notice, and re-saving the same invoice retries safely.
func (svc *Service) Submit(ctx context.Context, invoiceID string, data SubmitInvoice) (SubmitResult, error) {
	result := SubmitResult{State: StateDraft}

	if err := data.Validate(svc.validate); err != nil {
		return result, err
	}
	result.State = StateSubmitted

	unlock := svc.students.lock(data.StudentID)
	defer unlock()

	p, err := svc.getProfile(ctx, data.StudentID)
	if err != nil {
		return result, err
	}

	var existing Invoice
	if invoiceID != "" {
		if existing, err = svc.repos.Invoices.GetInvoice(ctx, invoiceID); err != nil {
			return result, errors.Wrap(err, "getting invoice")
		}
		if existing.StudentID != p.StudentID {
			return result, core.NewValidationError(errStudentChanged, core.FieldError{Field: "student_id", Error: errStudentChanged.Error()})
		}
		if existing.Settled() {
			if err = checkSettledEdit(existing, &data); err != nil {
				return result, err
			}
		}
	}

	base := data.BaseAmount
	if !base.IsPositive() {
		res, err := svc.resolver.Resolve(ctx, p, data.Semester)
		if err != nil {
			return result, errors.Wrap(err, "resolving fee")
		}
		if !res.Resolved() {
			return result, newError(KindResolutionMiss, fmt.Sprintf("%s for semester %d", scheduleNotFoundMsg, data.Semester), nil)
		}
		base = res.Amount
	}

	invoices, err := svc.repos.Invoices.QueryInvoices(ctx, &InvoiceFilter{StudentID: p.StudentID})
	if err != nil {
		return result, errors.Wrap(err, "querying invoices")
	}
	balance, err := svc.ledger.Balance(ctx, p.StudentID)
	if err != nil {
		return result, errors.Wrap(err, "reading balance")
	}
	lock := CheckFirstSemesterLock(p, invoices, invoiceID)
	due := CalculateDue(DueInput{
		Semester:        data.Semester,
		Lock:            lock,
		Balance:         balance,
		TotalProgramFee: p.TotalProgramFee,
		Scholarship:     p.ScholarshipAmount,
		Tuition:         base,
	})

	inv := svc.buildInvoice(ctx, p, existing, data, base)
	inv.Remarks = composeRemarks(inv, due)

	// committed
	if invoiceID == "" {
		if inv, err = svc.issuer.issue(ctx, inv); err != nil {
			return result, err
		}
		result.Created = true
	} else {
		inv.UpdatedAt = NowFunc().UTC()
		if inv, err = svc.repos.Invoices.UpdateInvoice(ctx, inv); err != nil {
			return result, errors.Wrap(err, "updating invoice")
		}
	}
	result.State = StateCommitted
	result.Invoice = inv
	result.Balance = balance
	result.Due = due

	if inv.Semester == 1 && !p.FirstSemesterBilled() && !lock.Locked {
		if err = svc.repos.Profiles.MarkFirstSemesterBilled(ctx, p.StudentID, inv.ID); err != nil {
			svc.logger.Warn(fmt.Sprintf("recording first semester invoice %s of %s: %v", inv.ID, p.StudentID, err), err, p)
		}
	}

	if inv.Paid && !inv.Settled() {
		outcome, err := svc.ledger.Settle(ctx, SettleRequest{
			StudentID: p.StudentID,
			InvoiceID: inv.ID,
			Semester:  inv.Semester,
			Amount:    inv.BaseAmount,
			Due:       due.Due,
		})
		if err != nil {
			return svc.settlementFailed(result, p, err), nil
		}
		result.Settlement = outcome

		settledAt := NowFunc().UTC()
		inv.SettledAt = &settledAt
		if updated, err := svc.repos.Invoices.UpdateInvoice(ctx, inv); err != nil {
			// the ledger entry is already settled: re-saving is a no-op there
			svc.logger.Warn(fmt.Sprintf("stamping settlement of invoice %s: %v", inv.ID, err), err, p)
		} else {
			inv = updated
		}
		result.Invoice = inv
	}

	// reconciled
	fresh, err := svc.ledger.Balance(ctx, p.StudentID)
	if err != nil {
		result.Notices = append(result.Notices, Notice{Kind: KindSettlementFailed, Message: "balance not reconciled: " + errors.Cause(err).Error()})
		return result, nil
	}
	result.Balance = fresh
	result.Due = CalculateDue(DueInput{
		Semester:        inv.Semester,
		Lock:            lock,
		Balance:         fresh,
		TotalProgramFee: p.TotalProgramFee,
		Scholarship:     p.ScholarshipAmount,
		Tuition:         inv.BaseAmount,
		TuitionSettled:  inv.Settled(),
	})
	if err = svc.repos.Profiles.UpdateDue(ctx, p.StudentID, result.Due.Due); err != nil {
		svc.logger.Warn(fmt.Sprintf("pushing due of %s: %v", p.StudentID, err), err, p)
	}
	result.State = StateReconciled

	prog, err := svc.scheduler.Evaluate(ctx, p.StudentID, NowFunc())
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("evaluating progression of %s: %v", p.StudentID, err), err, p)
	} else {
		result.Progression = &prog
		result.Notices = append(result.Notices, prog.Notices...)
	}

	return result, nil
}

// checkSettledEdit rejects edits that would make a settled invoice disagree with its settlement.
// An omitted base amount keeps the settled one.
func checkSettledEdit(existing Invoice, data *SubmitInvoice) error {
	if !data.Paid {
		return core.NewValidationError(errUnpaySettled, core.FieldError{Field: "paid", Error: errUnpaySettled.Error()})
	}
	if data.Semester != existing.Semester {
		return core.NewValidationError(errSettledSemester, core.FieldError{Field: "semester", Error: errSettledSemester.Error()})
	}
	if !data.BaseAmount.IsPositive() {
		data.BaseAmount = existing.BaseAmount
		return nil
	}
	if !data.BaseAmount.Equal(existing.BaseAmount) {
		return core.NewValidationError(errSettledAmount, core.FieldError{Field: "base_amount", Error: errSettledAmount.Error()})
	}
	return nil
}

func (svc *Service) buildInvoice(ctx context.Context, p Profile, existing Invoice, data SubmitInvoice, base decimal.Decimal) Invoice {
	inv := existing // keeps ID, CreatedAt & SettledAt on updates
	inv.StudentID = p.StudentID
	inv.Semester = data.Semester
	inv.AcademicYear = data.AcademicYear
	if inv.AcademicYear == "" {
		inv.AcademicYear = svc.years.Derive(ctx, p.StudentID, p.AdmissionDate)
	}
	inv.FeeHead = data.FeeHead
	inv.BaseAmount = base
	inv.AddedDue = data.AddedDue
	inv.LateFine = data.LateFine
	inv.Amount = inv.Total()
	inv.DueDate = data.DueDate
	inv.PaidDate = data.PaidDate
	inv.Paid = data.Paid
	if inv.Paid && inv.PaidDate == nil {
		now := NowFunc().UTC()
		inv.PaidDate = &now
	}
	inv.PaymentMode = data.PaymentMode
	inv.TransactionRef = data.TransactionRef
	inv.DocType = data.DocType
	inv.DocNumber = data.DocNumber
	inv.Note = data.Note
	return inv
}

func (svc *Service) settlementFailed(result SubmitResult, p Profile, err error) SubmitResult {
	svc.logger.Error(fmt.Sprintf("settling invoice %s: %v", result.Invoice.ID, err), err, p)

	notice := Notice{Kind: KindSettlementFailed, Message: "payment recorded, balance not reconciled"}
	if fe, ok := errors.Cause(err).(*Error); ok {
		notice = fe.Notice()
	}
	result.Notices = append(result.Notices, notice)

	if svc.mailer != nil && svc.bursar.Address != "" {
		svc.mailer.SendMessages(&core.EmailMessage{
			To:       []mail.Address{svc.bursar},
			Subject:  fmt.Sprintf("Balance not reconciled for invoice %s", result.Invoice.ID),
			Template: settlementFailedTemplate,
			TemplateData: settlementFailedEmail{
				Profile: p,
				Invoice: result.Invoice,
				Reason:  err.Error(),
			},
		})
	}
	return result
}

func (svc *Service) Invoices(ctx context.Context, filter *InvoiceFilter, ordering ...core.DBOrdering) ([]Invoice, error) {
	return svc.repos.Invoices.QueryInvoices(ctx, filter, ordering...)
}

func (svc *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return svc.repos.Invoices.GetInvoice(ctx, core.CleanString(id))
}

func (svc *Service) Balance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	return svc.ledger.Balance(ctx, core.CleanString(studentID))
}

func (svc *Service) Balances(ctx context.Context, studentIDs []string) []BalanceReading {
	ids := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		if id = core.CleanString(id); id != "" {
			ids = append(ids, id)
		}
	}
	return svc.ledger.Balances(ctx, ids)
}

// Progress evaluates the next-semester scheduler for one student.
func (svc *Service) Progress(ctx context.Context, studentID string, today time.Time) (Progression, error) {
	studentID = core.CleanString(studentID)
	unlock := svc.students.lock(studentID)
	defer unlock()

	return svc.scheduler.Evaluate(ctx, studentID, today)
}

// ProgressAll evaluates the scheduler for every student.
// A failure for one student is recorded on its Progression and does not stop the others.
func (svc *Service) ProgressAll(ctx context.Context, today time.Time) ([]Progression, error) {
	profiles, err := svc.repos.Profiles.QueryProfiles(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}

	progs := make([]Progression, 0, len(profiles))
	for _, p := range profiles {
		if err = ctx.Err(); err != nil {
			return progs, err
		}
		prog, err := svc.Progress(ctx, p.StudentID, today)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("evaluating progression of %s: %v", p.StudentID, err), err, p)
			prog.StudentID = p.StudentID
			prog.Error = errors.Cause(err).Error()
		}
		progs = append(progs, prog)
	}
	return progs, nil
}

// ReloadSchedules invalidates the cached fee structures and loads them again.
func (svc *Service) ReloadSchedules(ctx context.Context) error {
	return svc.resolver.Reload(ctx)
}
