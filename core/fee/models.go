package fee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

// Fee heads
type FeeHead string

const (
	FeeHeadTuition   FeeHead = "tuition"
	FeeHeadHostel    FeeHead = "hostel"
	FeeHeadExam      FeeHead = "exam"
	FeeHeadTransport FeeHead = "transport"
	FeeHeadLibrary   FeeHead = "library"
	FeeHeadOther     FeeHead = "other"
)

var FeeHeads = []FeeHead{FeeHeadTuition, FeeHeadHostel, FeeHeadExam, FeeHeadTransport, FeeHeadLibrary, FeeHeadOther}

func (h FeeHead) Valid() bool {
	for _, fh := range FeeHeads {
		if h == fh {
			return true
		}
	}
	return false
}

// Payment modes
type PaymentMode string

const (
	PaymentModeCash       PaymentMode = "cash"
	PaymentModeUPI        PaymentMode = "upi"
	PaymentModeNEFT       PaymentMode = "neft"
	PaymentModeCheque     PaymentMode = "cheque"
	PaymentModeDepartment PaymentMode = "department"
)

var PaymentModes = []PaymentMode{PaymentModeCash, PaymentModeUPI, PaymentModeNEFT, PaymentModeCheque, PaymentModeDepartment}

func (m PaymentMode) Valid() bool {
	for _, pm := range PaymentModes {
		if m == pm {
			return true
		}
	}
	return false
}

// RequiresTransactionRef reports whether a payment made in this mode must carry a transaction reference.
func (m PaymentMode) RequiresTransactionRef() bool {
	return m.Valid() && m != PaymentModeCash
}

// Identity document types
type DocType string

const (
	DocTypeAadhaar  DocType = "aadhaar"
	DocTypePAN      DocType = "pan"
	DocTypePassport DocType = "passport"
)

// Profile is a student's fee profile.
type Profile struct {
	StudentID              string                  `json:"student_id"`
	Name                   string                  `json:"name"`
	Email                  string                  `json:"email,omitempty"`
	ProgramID              string                  `json:"program_id"`
	TotalProgramFee        decimal.Decimal         `json:"total_program_fee"`
	ScholarshipAmount      decimal.Decimal         `json:"scholarship_amount"`
	PerSemesterFee         map[int]decimal.Decimal `json:"per_semester_fee,omitempty"`
	CurrentSemester        int                     `json:"current_semester"`
	Balance                decimal.Decimal         `json:"balance"` // cached; the ledger is authoritative
	Due                    decimal.Decimal         `json:"due"`
	AdmissionDate          time.Time               `json:"admission_date"`
	FirstSemesterInvoiceID string                  `json:"first_semester_invoice_id,omitempty"`
}

// FirstSemesterBilled reports whether the student's first-semester invoice has been recorded.
func (p Profile) FirstSemesterBilled() bool {
	return p.FirstSemesterInvoiceID != ""
}

// SemesterFee returns the per-semester fee override for semester n, or zero.
func (p Profile) SemesterFee(n int) decimal.Decimal {
	if p.PerSemesterFee == nil {
		return decimal.Zero
	}
	return p.PerSemesterFee[n]
}

// Structure is one fee schedule entry.
// A Structure with a StudentID is a per-student override, otherwise it applies to the whole program.
type Structure struct {
	ProgramID string          `json:"program_id"`
	StudentID string          `json:"student_id,omitempty"`
	Semester  int             `json:"semester"`
	FeeHead   FeeHead         `json:"fee_head"`
	Amount    decimal.Decimal `json:"amount"`
}

type Invoice struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	Semester       int             `json:"semester"`
	AcademicYear   string          `json:"academic_year"`
	FeeHead        FeeHead         `json:"fee_head"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	AddedDue       decimal.Decimal `json:"added_due"`
	LateFine       decimal.Decimal `json:"late_fine"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        *time.Time      `json:"due_date"`
	PaidDate       *time.Time      `json:"paid_date"`
	Paid           bool            `json:"paid"`
	SettledAt      *time.Time      `json:"settled_at"` // UTC; set once the payment has been applied to the ledger
	PaymentMode    PaymentMode     `json:"payment_mode,omitempty"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	DocType        DocType         `json:"doc_type,omitempty"`
	DocNumber      string          `json:"doc_number,omitempty"`
	Remarks        string          `json:"remarks"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

func (inv Invoice) Settled() bool {
	return inv.SettledAt != nil
}

// Total is the amount billed: base fee plus added due plus late fine.
func (inv Invoice) Total() decimal.Decimal {
	return inv.BaseAmount.Add(inv.AddedDue).Add(inv.LateFine)
}

// SemesterNumber returns the invoice semester, falling back to the legacy remarks tag for older records.
func (inv Invoice) SemesterNumber() int {
	if inv.Semester > 0 {
		return inv.Semester
	}
	return SemesterFromRemarks(inv.Remarks)
}

// SubmitInvoice contains the information needed to create or update an Invoice.
// A zero BaseAmount means "use the resolved fee schedule amount".
type SubmitInvoice struct {
	StudentID      string          `json:"student_id" validate:"required,notblank"`
	Semester       int             `json:"semester" validate:"required,min=1"`
	AcademicYear   string          `json:"academic_year"`
	FeeHead        FeeHead         `json:"fee_head" validate:"omitempty,feehead"`
	BaseAmount     decimal.Decimal `json:"base_amount" validate:"gte=0"`
	AddedDue       decimal.Decimal `json:"added_due" validate:"gte=0"`
	LateFine       decimal.Decimal `json:"late_fine" validate:"gte=0"`
	DueDate        *time.Time      `json:"due_date"`
	PaidDate       *time.Time      `json:"paid_date"`
	Paid           bool            `json:"paid"`
	PaymentMode    PaymentMode     `json:"payment_mode" validate:"omitempty,paymode"`
	TransactionRef string          `json:"transaction_ref"`
	DocType        DocType         `json:"doc_type" validate:"omitempty,doctype"`
	DocNumber      string          `json:"doc_number"`
	Note           string          `json:"note"`
}

// Clean normalises user input before validation.
func (si *SubmitInvoice) Clean() {
	si.StudentID = core.CleanString(si.StudentID)
	si.AcademicYear = core.CleanString(si.AcademicYear)
	si.FeeHead = FeeHead(core.CleanString(string(si.FeeHead), true /* lower */))
	if si.FeeHead == "" {
		si.FeeHead = FeeHeadTuition
	}
	si.PaymentMode = PaymentMode(core.CleanString(string(si.PaymentMode), true /* lower */))
	si.TransactionRef = core.CleanString(si.TransactionRef)
	si.DocType = DocType(core.CleanString(string(si.DocType), true /* lower */))
	si.DocNumber = normaliseDocNumber(si.DocNumber)
	si.Note = core.CleanString(si.Note)
}

type InvoiceFilter struct {
	StudentID string
	Paid      *bool
	Semester  int
}

func (f *InvoiceFilter) IsEmpty() bool {
	return f == nil || (f.StudentID == "" && f.Paid == nil && f.Semester == 0)
}

func (f *InvoiceFilter) Match(inv Invoice) bool {
	if f.IsEmpty() {
		return true
	}
	if f.StudentID != "" && inv.StudentID != f.StudentID {
		return false
	}
	if f.Paid != nil && inv.Paid != *f.Paid {
		return false
	}
	if f.Semester != 0 && inv.SemesterNumber() != f.Semester {
		return false
	}
	return true
}
