package inmemdb

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/fee"
)

type ledgerRepository struct {
	db *DB
}

var _ fee.LedgerRepository = (*ledgerRepository)(nil)

func NewLedgerRepository(db *DB) fee.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) GetBalance(_ context.Context, studentID string) (decimal.Decimal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if bal, ok := repo.db.balances[studentID]; ok {
		return bal, nil
	}
	return decimal.Zero, fee.ErrBalanceNotFound
}

func (repo *ledgerRepository) SettleSemester(_ context.Context, req fee.SettleRequest) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.profiles[req.StudentID]
	if !ok {
		return false, fee.ErrStudentNotFound
	}
	if !repo.recordSettlement(req) {
		return false, nil
	}

	bal, ok := repo.db.balances[req.StudentID]
	if !ok {
		bal = p.Balance
	}
	bal = clamp(bal.Sub(req.Amount))
	repo.db.balances[req.StudentID] = bal
	p.Balance = bal
	return true, nil
}

func (repo *ledgerRepository) OverwriteBalance(_ context.Context, req fee.SettleRequest, balance decimal.Decimal) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.profiles[req.StudentID]
	if !ok {
		return fee.ErrStudentNotFound
	}
	if req.InvoiceID != "" {
		repo.recordSettlement(req)
	}
	repo.db.balances[req.StudentID] = clamp(balance)
	p.Balance = clamp(balance)
	p.Due = clamp(req.Due)
	return nil
}

// recordSettlement marks the invoice as settled and zeroes its semester entry.
// It returns false if the invoice had already been settled. Callers hold the lock.
func (repo *ledgerRepository) recordSettlement(req fee.SettleRequest) bool {
	if repo.db.settlements[req.InvoiceID] {
		return false
	}
	repo.db.settlements[req.InvoiceID] = true

	key := semesterKey{req.StudentID, req.Semester}
	e, ok := repo.db.entries[key]
	if !ok {
		e = &semesterEntry{}
		repo.db.entries[key] = e
	}
	e.outstanding = decimal.Zero
	e.settled = true
	return true
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
