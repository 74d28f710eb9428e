package fee

import "github.com/shopspring/decimal"

// Lock reasons
const (
	LockReasonFirstSemesterInvoice = "first_semester_invoice"
	LockReasonSemesterOneInvoice   = "semester_one_invoice"
	LockReasonProgressed           = "progressed"
)

type LockResult struct {
	Locked          bool            `json:"locked"`
	ReferenceAmount decimal.Decimal `json:"reference_amount"`
	Reason          string          `json:"reason,omitempty"`
}

// CheckFirstSemesterLock reports whether the student's first semester has already been billed.
// invoices are the student's existing invoices; the one identified by excludeID (the invoice
// being edited, if any) is not a semester-1 bill of its own, so re-saving the first bill does not lock itself.
//
// The first semester is locked when:
//   - the profile records a first-semester invoice other than excludeID,
//   - another invoice is for semester 1 (explicit field, or the "Semester: 1" remarks tag on older rows),
//   - the student has progressed past semester 1 and has at least one invoice (excludeID included).
func CheckFirstSemesterLock(p Profile, invoices []Invoice, excludeID string) LockResult {
	var own, others []Invoice
	for _, inv := range invoices {
		if inv.StudentID != "" && inv.StudentID != p.StudentID {
			continue
		}
		own = append(own, inv)
		if inv.ID == excludeID && excludeID != "" {
			continue
		}
		others = append(others, inv)
	}

	if p.FirstSemesterBilled() && p.FirstSemesterInvoiceID != excludeID {
		res := LockResult{Locked: true, Reason: LockReasonFirstSemesterInvoice}
		for _, inv := range others {
			if inv.ID == p.FirstSemesterInvoiceID {
				res.ReferenceAmount = inv.BaseAmount
				break
			}
		}
		return res
	}

	for _, inv := range others {
		if inv.SemesterNumber() == 1 {
			return LockResult{Locked: true, ReferenceAmount: inv.BaseAmount, Reason: LockReasonSemesterOneInvoice}
		}
	}

	if p.CurrentSemester > 1 && len(own) > 0 {
		return LockResult{Locked: true, ReferenceAmount: decimal.Zero, Reason: LockReasonProgressed}
	}

	return LockResult{ReferenceAmount: decimal.Zero}
}
