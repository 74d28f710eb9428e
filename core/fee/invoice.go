package fee

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

const InvoiceIDPrefix = "INV-"

var (
	invoiceIDRegex       = regexp.MustCompile(`^INV-(\d+)$`)
	remarksSemesterRegex = regexp.MustCompile(`(?i)\bsemester:\s*(\d+)\b`)
)

// NextInvoiceID returns the identifier following the highest well-formed "INV-<n>" in ids,
// zero-padded to 4 digits. Non-conforming identifiers are ignored; an empty history yields INV-0001.
func NextInvoiceID(ids []string) string {
	var max int64
	for _, id := range ids {
		m := invoiceIDRegex.FindStringSubmatch(strings.TrimSpace(id))
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%04d", InvoiceIDPrefix, max+1)
}

// SemesterFromRemarks extracts the "Semester: <n>" tag older invoices carry in their remarks, or 0.
func SemesterFromRemarks(remarks string) int {
	m := remarksSemesterRegex.FindStringSubmatch(remarks)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// composeRemarks writes the human-readable summary stored with an invoice.
func composeRemarks(inv Invoice, due DueBreakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Semester: %d | Fee head: %s | Base: %s", inv.Semester, inv.FeeHead, money(inv.BaseAmount))
	if inv.AddedDue.IsPositive() {
		fmt.Fprintf(&b, " | Added due: %s", money(inv.AddedDue))
	}
	if inv.LateFine.IsPositive() {
		fmt.Fprintf(&b, " | Late fine: %s", money(inv.LateFine))
	}
	fmt.Fprintf(&b, " | Total: %s | Due: %s", money(inv.Amount), money(due.Due))
	if due.Locked {
		b.WriteString(" | First semester locked")
	}
	if inv.Note != "" {
		fmt.Fprintf(&b, " | Note: %s", inv.Note)
	}
	return b.String()
}

func progressionRemarks(from, to int, amount decimal.Decimal) string {
	return fmt.Sprintf("Semester: %d | Fee head: %s | Base: %s | Issued on progression from semester %d",
		to, FeeHeadTuition, money(amount), from)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FilterInvoices returns the invoices matching filter, in their original order.
func FilterInvoices(invoices []Invoice, filter *InvoiceFilter) []Invoice {
	if filter.IsEmpty() {
		return invoices
	}
	res := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if filter.Match(inv) {
			res = append(res, inv)
		}
	}
	return res
}

// SortInvoices orders invoices in place; defaults to newest first.
// Supported fields: id, semester, amount, due_date, paid_date, created_at.
func SortInvoices(invoices []Invoice, ordering ...core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareInvoices(invoices[i], invoices[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareInvoices(a, b Invoice, field string) int {
	switch field {
	case "id":
		return compareInvoiceIDs(a.ID, b.ID)
	case "semester":
		return a.SemesterNumber() - b.SemesterNumber()
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "due_date":
		return compareTimes(a.DueDate, b.DueDate)
	case "paid_date":
		return compareTimes(a.PaidDate, b.PaidDate)
	case "created_at":
		return compareTimes(&a.CreatedAt, &b.CreatedAt)
	}
	return 0
}

// compareInvoiceIDs compares numerically when both ids are well formed.
func compareInvoiceIDs(a, b string) int {
	ma, mb := invoiceIDRegex.FindStringSubmatch(a), invoiceIDRegex.FindStringSubmatch(b)
	if ma != nil && mb != nil {
		na, _ := strconv.ParseInt(ma[1], 10, 64)
		nb, _ := strconv.ParseInt(mb[1], 10, 64)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}
