package inmemdb

import (
	"context"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

type invoiceRepository struct {
	db *DB
}

var _ fee.InvoiceRepository = (*invoiceRepository)(nil)

func NewInvoiceRepository(db *DB) fee.InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (repo *invoiceRepository) query() []fee.Invoice {
	invoices := make([]fee.Invoice, 0, len(repo.db.invoices))
	for _, inv := range repo.db.invoices {
		invoices = append(invoices, *inv)
	}
	return invoices
}

func (repo *invoiceRepository) QueryInvoiceIDs(context.Context) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0, len(repo.db.invoices))
	for id := range repo.db.invoices {
		ids = append(ids, id)
	}
	return ids, nil
}

func (repo *invoiceRepository) QueryInvoices(_ context.Context, filter *fee.InvoiceFilter, ordering ...core.DBOrdering) ([]fee.Invoice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	invoices := fee.FilterInvoices(repo.query(), filter)
	fee.SortInvoices(invoices, ordering...)
	return invoices, nil
}

func (repo *invoiceRepository) GetInvoice(_ context.Context, id string) (fee.Invoice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok {
		return *inv, nil
	}
	return fee.Invoice{}, fee.ErrInvoiceNotFound
}

func (repo *invoiceRepository) CreateInvoice(_ context.Context, inv fee.Invoice) (fee.Invoice, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.profiles[inv.StudentID]; !ok {
		return fee.Invoice{}, fee.ErrStudentNotFound
	}
	repo.db.invoices[inv.ID] = &inv
	repo.openSemester(inv)
	return inv, nil
}

func (repo *invoiceRepository) UpdateInvoice(_ context.Context, inv fee.Invoice) (fee.Invoice, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.invoices[inv.ID]; !ok {
		return fee.Invoice{}, fee.ErrInvoiceNotFound
	}
	repo.db.invoices[inv.ID] = &inv
	repo.openSemester(inv)
	return inv, nil
}

// openSemester records the billed tuition as the outstanding amount of the semester's ledger entry.
func (repo *invoiceRepository) openSemester(inv fee.Invoice) {
	if inv.FeeHead != fee.FeeHeadTuition || inv.Semester < 1 {
		return
	}
	key := semesterKey{inv.StudentID, inv.Semester}
	e, ok := repo.db.entries[key]
	if !ok {
		repo.db.entries[key] = &semesterEntry{outstanding: inv.BaseAmount}
		return
	}
	if !e.settled {
		e.outstanding = inv.BaseAmount
	}
}
