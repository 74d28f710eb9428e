package fee

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type (
	ProfileRepository interface {
		QueryProfiles(ctx context.Context) ([]Profile, error)
		GetProfile(ctx context.Context, studentID string) (Profile, error)
		SetCurrentSemester(ctx context.Context, studentID string, semester int) error
		MarkFirstSemesterBilled(ctx context.Context, studentID, invoiceID string) error
		UpdateDue(ctx context.Context, studentID string, due decimal.Decimal) error
	}

	StructureRepository interface {
		// QueryStructures returns every program-wide fee structure entry.
		QueryStructures(ctx context.Context) ([]Structure, error)
		// QueryStudentStructures returns the per-student overrides for a semester.
		QueryStudentStructures(ctx context.Context, studentID string, semester int) ([]Structure, error)
	}

	AcademicYearRepository interface {
		GetAcademicYear(ctx context.Context, studentID string) (string, error)
	}

	InvoiceRepository interface {
		QueryInvoiceIDs(ctx context.Context) ([]string, error)
		QueryInvoices(ctx context.Context, filter *InvoiceFilter, ordering ...core.DBOrdering) ([]Invoice, error)
		GetInvoice(ctx context.Context, id string) (Invoice, error)
		CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
		UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	}

	LedgerRepository interface {
		// GetBalance returns ErrBalanceNotFound when the store holds no balance record for the student.
		GetBalance(ctx context.Context, studentID string) (decimal.Decimal, error)
		// SettleSemester zeroes the entry of req.Semester and lowers the balance by req.Amount (never below zero).
		// It runs once per invoice: applied is false if req.InvoiceID had already been settled.
		SettleSemester(ctx context.Context, req SettleRequest) (applied bool, err error)
		// OverwriteBalance stores balance and req.Due as-is.
		// Stores that keep settlements also record req.InvoiceID as settled, so a later SettleSemester is a no-op.
		OverwriteBalance(ctx context.Context, req SettleRequest, balance decimal.Decimal) error
	}

	Repositories struct {
		Profiles      ProfileRepository
		Structures    StructureRepository
		AcademicYears AcademicYearRepository
		Invoices      InvoiceRepository
		Ledger        LedgerRepository
	}
)
