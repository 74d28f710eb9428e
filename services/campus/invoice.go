package campussvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

// invoicePayload is the invoice as the backend stores it.
type invoicePayload struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"studentId"`
	Semester       int             `json:"semester"`
	AcademicYear   string          `json:"academicYear"`
	FeeHead        fee.FeeHead     `json:"feeHead"`
	BaseAmount     decimal.Decimal `json:"baseAmount"`
	AddedDue       decimal.Decimal `json:"addedDue"`
	LateFine       decimal.Decimal `json:"lateFine"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	PaidDate       *time.Time      `json:"paidDate,omitempty"`
	Paid           bool            `json:"paid"`
	SettledAt      *time.Time      `json:"settledAt,omitempty"`
	PaymentMode    fee.PaymentMode `json:"paymentMode,omitempty"`
	TransactionRef string          `json:"transactionRef,omitempty"`
	DocType        fee.DocType     `json:"docType,omitempty"`
	DocNumber      string          `json:"docNumber,omitempty"`
	Remarks        string          `json:"remarks"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newInvoicePayload(inv fee.Invoice) invoicePayload {
	return invoicePayload(inv)
}

func invoiceFromRecord(rec record) fee.Invoice {
	inv := fee.Invoice{
		ID:             rec.str("id", "invoiceid", "invoiceno", "invoicenumber"),
		StudentID:      rec.str(studentKeyList...),
		Semester:       rec.num("semester", "sem"),
		AcademicYear:   rec.str("academicyear", "year"),
		FeeHead:        fee.FeeHead(rec.str("feehead", "head", "feetype")),
		BaseAmount:     rec.amount("baseamount", "base", "tuition", "tuitionamount"),
		AddedDue:       rec.amount("addeddue", "previousdue"),
		LateFine:       rec.amount("latefine", "fine"),
		Amount:         rec.amount("amount", "total", "totalamount"),
		DueDate:        rec.date("duedate"),
		PaidDate:       rec.date("paiddate", "paymentdate"),
		Paid:           rec.flag("paid", "ispaid"),
		SettledAt:      rec.date("settledat"),
		PaymentMode:    fee.PaymentMode(rec.str("paymentmode", "mode")),
		TransactionRef: rec.str("transactionref", "transactionid", "txnref", "reference"),
		DocType:        fee.DocType(rec.str("doctype", "documenttype")),
		DocNumber:      rec.str("docnumber", "documentnumber"),
		Remarks:        rec.str("remarks", "remark"),
		Note:           rec.str("note", "notes"),
	}
	if inv.FeeHead == "" {
		inv.FeeHead = fee.FeeHeadTuition
	}
	if inv.BaseAmount.IsZero() && inv.AddedDue.IsZero() && inv.LateFine.IsZero() {
		inv.BaseAmount = inv.Amount
	}
	if t := rec.date("createdat", "created"); t != nil {
		inv.CreatedAt = *t
	}
	if t := rec.date("updatedat", "updated"); t != nil {
		inv.UpdatedAt = *t
	}
	return inv
}

func (c *Client) queryAllInvoices(ctx context.Context) ([]fee.Invoice, error) {
	recs, err := c.list(ctx, "/invoices", nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	invoices := make([]fee.Invoice, 0, len(recs))
	for _, rec := range recs {
		if inv := invoiceFromRecord(rec); inv.ID != "" {
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

func (c *Client) QueryInvoiceIDs(ctx context.Context) ([]string, error) {
	invoices, err := c.queryAllInvoices(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	return ids, nil
}

func (c *Client) QueryInvoices(ctx context.Context, filter *fee.InvoiceFilter, ordering ...core.DBOrdering) ([]fee.Invoice, error) {
	invoices, err := c.queryAllInvoices(ctx)
	if err != nil {
		return nil, err
	}
	invoices = fee.FilterInvoices(invoices, filter)
	fee.SortInvoices(invoices, ordering...)
	return invoices, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (fee.Invoice, error) {
	invoices, err := c.queryAllInvoices(ctx)
	if err != nil {
		return fee.Invoice{}, err
	}
	for _, inv := range invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return fee.Invoice{}, fee.ErrInvoiceNotFound
}

func (c *Client) CreateInvoice(ctx context.Context, inv fee.Invoice) (fee.Invoice, error) {
	if err := c.do(ctx, rest.Post, "/invoices", nil, newInvoicePayload(inv), nil); err != nil {
		return fee.Invoice{}, errors.Wrap(err, "creating invoice")
	}
	return inv, nil
}

func (c *Client) UpdateInvoice(ctx context.Context, inv fee.Invoice) (fee.Invoice, error) {
	if err := c.do(ctx, rest.Put, "/invoices/"+inv.ID, nil, newInvoicePayload(inv), nil); err != nil {
		if isNotFound(err) {
			return fee.Invoice{}, fee.ErrInvoiceNotFound
		}
		return fee.Invoice{}, errors.Wrap(err, "updating invoice")
	}
	return inv, nil
}
