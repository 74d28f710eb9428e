package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

type ledgerRepository struct {
	db core.DB
}

var _ fee.LedgerRepository = (*ledgerRepository)(nil)

func NewLedgerRepository(db core.DB) fee.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (repo ledgerRepository) GetBalance(ctx context.Context, studentID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	q := `SELECT balance FROM student_balances WHERE student_id = $1`
	if err := sqlx.GetContext(ctx, repo.db, &bal, q, studentID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return decimal.Zero, fee.ErrBalanceNotFound
		}
		return decimal.Zero, errors.Wrap(err, "getting balance")
	}
	return bal, nil
}

// lockStudent locks the student's profile row for the rest of the transaction.
func lockStudent(ctx context.Context, tx core.DBTransactor, studentID string) error {
	var id string
	q := `SELECT student_id FROM student_fee_profiles WHERE student_id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, tx, &id, q, studentID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return fee.ErrStudentNotFound
		}
		return errors.Wrap(err, "locking student")
	}
	return nil
}

// recordSettlement records the settlement of req.InvoiceID and zeroes its semester entry.
// It returns false if the invoice had already been settled.
func recordSettlement(ctx context.Context, tx core.DBTransactor, req fee.SettleRequest) (bool, error) {
	q := `INSERT INTO invoice_settlements (invoice_id, student_id, semester, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (invoice_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, q, req.InvoiceID, req.StudentID, req.Semester, req.Amount)
	if err != nil {
		return false, errors.Wrap(err, "recording settlement")
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, errors.Wrap(err, "recording settlement")
	} else if n == 0 {
		return false, nil // already settled
	}

	q = `INSERT INTO semester_ledger_entries (id, student_id, semester, outstanding, settled_at) VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (student_id, semester) DO UPDATE
		SET outstanding = 0, settled_at = COALESCE(semester_ledger_entries.settled_at, now())`
	if _, err = tx.ExecContext(ctx, q, uuid.New().String(), req.StudentID, req.Semester); err != nil {
		return false, errors.Wrap(err, "settling semester ledger entry")
	}
	return true, nil
}

func (repo ledgerRepository) SettleSemester(ctx context.Context, req fee.SettleRequest) (bool, error) {
	var applied bool
	err := withTx(ctx, repo.db, func(tx core.DBTransactor) error {
		if err := lockStudent(ctx, tx, req.StudentID); err != nil {
			return err
		}

		ok, err := recordSettlement(ctx, tx, req)
		if err != nil || !ok {
			return err
		}

		var bal decimal.Decimal
		q := `INSERT INTO student_balances (student_id, balance, updated_at)
			SELECT student_id, GREATEST(balance - $2, 0), now() FROM student_fee_profiles WHERE student_id = $1
			ON CONFLICT (student_id) DO UPDATE
			SET balance = GREATEST(student_balances.balance - $2, 0), updated_at = now()
			RETURNING balance`
		if err = sqlx.GetContext(ctx, tx, &bal, q, req.StudentID, req.Amount); err != nil {
			return errors.Wrap(err, "decrementing balance")
		}

		q = `UPDATE student_fee_profiles SET balance = $2, updated_at = now() WHERE student_id = $1`
		if _, err = tx.ExecContext(ctx, q, req.StudentID, bal); err != nil {
			return errors.Wrap(err, "caching balance on profile")
		}
		applied = true
		return nil
	})
	return applied, err
}

func (repo ledgerRepository) OverwriteBalance(ctx context.Context, req fee.SettleRequest, balance decimal.Decimal) error {
	return withTx(ctx, repo.db, func(tx core.DBTransactor) error {
		if err := lockStudent(ctx, tx, req.StudentID); err != nil {
			return err
		}

		if req.InvoiceID != "" {
			if _, err := recordSettlement(ctx, tx, req); err != nil {
				return err
			}
		}

		q := `INSERT INTO student_balances (student_id, balance, updated_at) VALUES ($1, GREATEST($2, 0), now())
			ON CONFLICT (student_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()`
		if _, err := tx.ExecContext(ctx, q, req.StudentID, balance); err != nil {
			return errors.Wrap(err, "overwriting balance")
		}

		q = `UPDATE student_fee_profiles SET balance = GREATEST($2, 0), due = GREATEST($3, 0), updated_at = now()
			WHERE student_id = $1`
		if _, err := tx.ExecContext(ctx, q, req.StudentID, balance, req.Due); err != nil {
			return errors.Wrap(err, "overwriting profile balance")
		}
		return nil
	})
}
