package fee

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

const DefaultProgressionThresholdDays = 182

var NowFunc = time.Now // mockable

type Progression struct {
	StudentID        string     `json:"student_id"`
	Triggered        bool       `json:"triggered"`
	Advanced         bool       `json:"advanced"`
	DaysElapsed      int        `json:"days_elapsed"`
	LastRelevantDate *time.Time `json:"last_relevant_date"`
	FromSemester     int        `json:"from_semester"`
	ToSemester       int        `json:"to_semester"`
	Invoice          *Invoice   `json:"invoice,omitempty"`
	Notices          []Notice   `json:"notices,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Scheduler rolls students into their next semester once enough time has passed
// since their last invoice-relevant date.
type Scheduler struct {
	profiles      ProfileRepository
	invoices      InvoiceRepository
	resolver      *Resolver
	years         *AcademicYearDeriver
	issuer        *invoiceIssuer
	mailer        core.EmailService
	thresholdDays int
	logger        core.Logger
}

func newScheduler(
	repos Repositories,
	resolver *Resolver,
	years *AcademicYearDeriver,
	issuer *invoiceIssuer,
	mailer core.EmailService,
	thresholdDays int,
	logger core.Logger,
) *Scheduler {
	if thresholdDays <= 0 {
		thresholdDays = DefaultProgressionThresholdDays
	}
	return &Scheduler{
		profiles:      repos.Profiles,
		invoices:      repos.Invoices,
		resolver:      resolver,
		years:         years,
		issuer:        issuer,
		mailer:        mailer,
		thresholdDays: thresholdDays,
		logger:        logger,
	}
}

// Evaluate checks whether the student is due for their next semester as of today.
// When triggered and the next semester's fee resolves, an unpaid tuition invoice due today is issued
// and the student's current semester is advanced; otherwise the semester is left untouched.
// A student whose next semester is already billed is advanced without issuing anything.
func (s *Scheduler) Evaluate(ctx context.Context, studentID string, today time.Time) (Progression, error) {
	prog := Progression{StudentID: studentID}

	p, err := s.profiles.GetProfile(ctx, studentID)
	if err != nil {
		return prog, errors.Wrap(err, "getting profile")
	}
	prog.FromSemester = p.CurrentSemester
	prog.ToSemester = p.CurrentSemester

	invoices, err := s.invoices.QueryInvoices(ctx, &InvoiceFilter{StudentID: studentID})
	if err != nil {
		return prog, errors.Wrap(err, "querying invoices")
	}

	last := LastRelevantDate(p, invoices)
	if last != nil {
		prog.LastRelevantDate = last
		prog.DaysElapsed = DaysBetween(*last, today)
	}

	next := p.CurrentSemester + 1
	if billed := semesterInvoice(invoices, next); billed != nil {
		// next semester already billed (e.g. the advance failed after issuing): advance only
		if err = s.profiles.SetCurrentSemester(ctx, p.StudentID, next); err != nil {
			return prog, errors.Wrapf(err, "advancing %s to semester %d", p.StudentID, next)
		}
		prog.Invoice = billed
		prog.Advanced = true
		prog.ToSemester = next
		return prog, nil
	}

	if last == nil || prog.DaysElapsed < s.thresholdDays {
		return prog, nil
	}
	prog.Triggered = true

	res, err := s.resolver.Resolve(ctx, p, next)
	if err != nil {
		return prog, errors.Wrapf(err, "resolving fee of semester %d", next)
	}
	if !res.Resolved() {
		prog.Notices = append(prog.Notices, Notice{
			Kind:    KindSchedulerMiss,
			Message: fmt.Sprintf("next semester amount not found (semester %d)", next),
		})
		return prog, nil
	}

	due := civilDate(today)
	inv, err := s.issuer.issue(ctx, Invoice{
		StudentID:    p.StudentID,
		Semester:     next,
		AcademicYear: s.years.Derive(ctx, p.StudentID, p.AdmissionDate),
		FeeHead:      FeeHeadTuition,
		BaseAmount:   res.Amount,
		Amount:       res.Amount,
		DueDate:      &due,
		Remarks:      progressionRemarks(p.CurrentSemester, next, res.Amount),
	})
	if err != nil {
		return prog, errors.Wrap(err, "issuing next semester invoice")
	}
	prog.Invoice = &inv

	if err = s.profiles.SetCurrentSemester(ctx, p.StudentID, next); err != nil {
		return prog, errors.Wrapf(err, "advancing %s to semester %d", p.StudentID, next)
	}
	prog.Advanced = true
	prog.ToSemester = next

	s.notify(p, inv)
	return prog, nil
}

func (s *Scheduler) notify(p Profile, inv Invoice) {
	if s.mailer == nil || p.Email == "" {
		return
	}
	s.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject:      fmt.Sprintf("Semester %d fee invoice %s", inv.Semester, inv.ID),
		Template:     progressionTemplate,
		TemplateData: progressionEmail{Profile: p, Invoice: inv},
	})
}

// semesterInvoice returns the tuition invoice billed for semester, or nil.
func semesterInvoice(invoices []Invoice, semester int) *Invoice {
	for _, inv := range invoices {
		if inv.FeeHead == FeeHeadTuition && inv.SemesterNumber() == semester {
			inv := inv
			return &inv
		}
	}
	return nil
}

// LastRelevantDate returns the latest paid or due date over the invoices,
// falling back to the admission date. It is nil when none is known.
func LastRelevantDate(p Profile, invoices []Invoice) *time.Time {
	var last *time.Time
	consider := func(t *time.Time) {
		if t == nil || t.IsZero() {
			return
		}
		if last == nil || t.After(*last) {
			tt := *t
			last = &tt
		}
	}
	for _, inv := range invoices {
		consider(inv.PaidDate)
		consider(inv.DueDate)
	}
	if last == nil && !p.AdmissionDate.IsZero() {
		consider(&p.AdmissionDate)
	}
	return last
}

// DaysBetween counts the calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(civilDate(b).Sub(civilDate(a)).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
