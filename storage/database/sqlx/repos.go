package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

// NewRepositories returns all fee repositories backed by db.
func NewRepositories(db core.DB) fee.Repositories {
	return fee.Repositories{
		Profiles:      NewProfileRepository(db),
		Structures:    NewStructureRepository(db),
		AcademicYears: NewAcademicYearRepository(db),
		Invoices:      NewInvoiceRepository(db),
		Ledger:        NewLedgerRepository(db),
	}
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db core.DB, fn func(tx core.DBTransactor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		if errors.Cause(err) == sql.ErrConnDone {
			return core.NewShutdownError("database connection closed")
		}
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

// checkAffected maps an update that touched no row to notFound.
func checkAffected(res sql.Result, notFound error, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
