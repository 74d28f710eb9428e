package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

const invoiceColumns = `id, student_id, semester, academic_year, fee_head, base_amount, added_due, late_fine,
	amount, due_date, paid_date, paid, settled_at, payment_mode, transaction_ref, doc_type, doc_number,
	remarks, note, created_at, updated_at`

// orderable invoice fields -> columns
var invoiceOrderColumns = map[string]string{
	"id":         "id",
	"semester":   "semester",
	"amount":     "amount",
	"due_date":   "due_date",
	"paid_date":  "paid_date",
	"created_at": "created_at",
}

type invoiceRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	Semester       int             `db:"semester"`
	AcademicYear   string          `db:"academic_year"`
	FeeHead        string          `db:"fee_head"`
	BaseAmount     decimal.Decimal `db:"base_amount"`
	AddedDue       decimal.Decimal `db:"added_due"`
	LateFine       decimal.Decimal `db:"late_fine"`
	Amount         decimal.Decimal `db:"amount"`
	DueDate        null.Time       `db:"due_date"`
	PaidDate       null.Time       `db:"paid_date"`
	Paid           bool            `db:"paid"`
	SettledAt      null.Time       `db:"settled_at"`
	PaymentMode    null.String     `db:"payment_mode"`
	TransactionRef null.String     `db:"transaction_ref"`
	DocType        null.String     `db:"doc_type"`
	DocNumber      null.String     `db:"doc_number"`
	Remarks        string          `db:"remarks"`
	Note           null.String     `db:"note"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func newInvoiceRow(inv fee.Invoice) invoiceRow {
	return invoiceRow{
		ID:             inv.ID,
		StudentID:      inv.StudentID,
		Semester:       inv.Semester,
		AcademicYear:   inv.AcademicYear,
		FeeHead:        string(inv.FeeHead),
		BaseAmount:     inv.BaseAmount,
		AddedDue:       inv.AddedDue,
		LateFine:       inv.LateFine,
		Amount:         inv.Amount,
		DueDate:        nullTime(inv.DueDate),
		PaidDate:       nullTime(inv.PaidDate),
		Paid:           inv.Paid,
		SettledAt:      nullTime(inv.SettledAt),
		PaymentMode:    nullString(string(inv.PaymentMode)),
		TransactionRef: nullString(inv.TransactionRef),
		DocType:        nullString(string(inv.DocType)),
		DocNumber:      nullString(inv.DocNumber),
		Remarks:        inv.Remarks,
		Note:           nullString(inv.Note),
		CreatedAt:      inv.CreatedAt.UTC(),
		UpdatedAt:      inv.UpdatedAt.UTC(),
	}
}

func (row invoiceRow) invoice() fee.Invoice {
	return fee.Invoice{
		ID:             row.ID,
		StudentID:      row.StudentID,
		Semester:       row.Semester,
		AcademicYear:   row.AcademicYear,
		FeeHead:        fee.FeeHead(row.FeeHead),
		BaseAmount:     row.BaseAmount,
		AddedDue:       row.AddedDue,
		LateFine:       row.LateFine,
		Amount:         row.Amount,
		DueDate:        row.DueDate.Ptr(),
		PaidDate:       row.PaidDate.Ptr(),
		Paid:           row.Paid,
		SettledAt:      row.SettledAt.Ptr(),
		PaymentMode:    fee.PaymentMode(row.PaymentMode.String),
		TransactionRef: row.TransactionRef.String,
		DocType:        fee.DocType(row.DocType.String),
		DocNumber:      row.DocNumber.String,
		Remarks:        row.Remarks,
		Note:           row.Note.String,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

type invoiceRepository struct {
	db core.DB
}

var _ fee.InvoiceRepository = (*invoiceRepository)(nil)

func NewInvoiceRepository(db core.DB) fee.InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (repo invoiceRepository) QueryInvoiceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, repo.db, &ids, `SELECT id FROM invoices`); err != nil {
		return nil, errors.Wrap(err, "querying invoice ids")
	}
	return ids, nil
}

func (repo invoiceRepository) QueryInvoices(ctx context.Context, filter *fee.InvoiceFilter, ordering ...core.DBOrdering) ([]fee.Invoice, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.StudentID != "" {
			args = append(args, filter.StudentID)
			where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
		}
		if filter.Paid != nil {
			args = append(args, *filter.Paid)
			where = append(where, fmt.Sprintf("paid = $%d", len(args)))
		}
		if filter.Semester != 0 {
			args = append(args, filter.Semester)
			where = append(where, fmt.Sprintf("semester = $%d", len(args)))
		}
	}

	q := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}

	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := invoiceOrderColumns[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}
	q += ` ORDER BY ` + strings.Join(orderList, ", ")

	var rows []invoiceRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	invoices := make([]fee.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.invoice())
	}
	return invoices, nil
}

func (repo invoiceRepository) GetInvoice(ctx context.Context, id string) (fee.Invoice, error) {
	var row invoiceRow
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return fee.Invoice{}, fee.ErrInvoiceNotFound
		}
		return fee.Invoice{}, errors.Wrap(err, "getting invoice")
	}
	return row.invoice(), nil
}

func (repo invoiceRepository) CreateInvoice(ctx context.Context, inv fee.Invoice) (fee.Invoice, error) {
	err := withTx(ctx, repo.db, func(tx core.DBTransactor) error {
		q := `INSERT INTO invoices (` + invoiceColumns + `) VALUES (:id, :student_id, :semester, :academic_year,
			:fee_head, :base_amount, :added_due, :late_fine, :amount, :due_date, :paid_date, :paid, :settled_at,
			:payment_mode, :transaction_ref, :doc_type, :doc_number, :remarks, :note, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, q, newInvoiceRow(inv)); err != nil {
			return errors.Wrap(err, "inserting invoice")
		}
		return openSemester(ctx, tx, inv)
	})
	if err != nil {
		return fee.Invoice{}, err
	}
	return inv, nil
}

func (repo invoiceRepository) UpdateInvoice(ctx context.Context, inv fee.Invoice) (fee.Invoice, error) {
	err := withTx(ctx, repo.db, func(tx core.DBTransactor) error {
		q := `UPDATE invoices SET semester = :semester, academic_year = :academic_year, fee_head = :fee_head,
			base_amount = :base_amount, added_due = :added_due, late_fine = :late_fine, amount = :amount,
			due_date = :due_date, paid_date = :paid_date, paid = :paid, settled_at = :settled_at,
			payment_mode = :payment_mode, transaction_ref = :transaction_ref, doc_type = :doc_type,
			doc_number = :doc_number, remarks = :remarks, note = :note, updated_at = :updated_at
			WHERE id = :id`
		res, err := sqlx.NamedExecContext(ctx, tx, q, newInvoiceRow(inv))
		if err != nil {
			return errors.Wrap(err, "updating invoice")
		}
		if err = checkAffected(res, fee.ErrInvoiceNotFound, "updating invoice"); err != nil {
			return err
		}
		return openSemester(ctx, tx, inv)
	})
	if err != nil {
		return fee.Invoice{}, err
	}
	return inv, nil
}

// openSemester records the billed tuition as the outstanding amount of the semester's ledger entry,
// unless that entry is already settled.
func openSemester(ctx context.Context, exec core.DBExecutor, inv fee.Invoice) error {
	if inv.FeeHead != fee.FeeHeadTuition || inv.Semester < 1 {
		return nil
	}
	q := `INSERT INTO semester_ledger_entries (id, student_id, semester, outstanding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, semester) DO UPDATE SET outstanding = EXCLUDED.outstanding
		WHERE semester_ledger_entries.settled_at IS NULL`
	if _, err := exec.ExecContext(ctx, q, uuid.New().String(), inv.StudentID, inv.Semester, inv.BaseAmount); err != nil {
		return errors.Wrap(err, "opening semester ledger entry")
	}
	return nil
}
