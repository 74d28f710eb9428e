package fee

import "github.com/shopspring/decimal"

type DueInput struct {
	Semester        int
	Lock            LockResult
	Balance         decimal.Decimal // current ledger balance
	TotalProgramFee decimal.Decimal
	Scholarship     decimal.Decimal
	Tuition         decimal.Decimal // billed tuition/base component of the invoice
	// TuitionSettled is set when Balance already reflects the settlement of Tuition
	// (i.e. after a payment has been applied); Tuition is then not subtracted again from it.
	TuitionSettled bool
}

type DueBreakdown struct {
	Base   decimal.Decimal `json:"base"`
	Due    decimal.Decimal `json:"due"`
	Locked bool            `json:"locked"`
}

// CalculateDue computes what the student still owes after paying the invoice's tuition component.
//
// A first, never-billed semester is measured against the full program fee net of scholarship;
// any later semester, or a first semester already billed, is measured against the live balance.
//
// Only the tuition/base component reduces the due. Added due and late fines are billed on the
// invoice but deliberately left out of this computation, and they never reduce the balance.
// Keep it that way.
func CalculateDue(in DueInput) DueBreakdown {
	treatAsLocked := in.Semester != 1 || in.Lock.Locked

	res := DueBreakdown{Locked: treatAsLocked}
	if treatAsLocked {
		res.Base = in.Balance
		if in.TuitionSettled {
			res.Due = nonNegative(in.Balance)
			return res
		}
	} else {
		res.Base = in.TotalProgramFee.Sub(in.Scholarship)
	}
	res.Due = nonNegative(res.Base.Sub(in.Tuition))
	return res
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
