package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

type structureRow struct {
	ProgramID string          `db:"program_id"`
	StudentID string          `db:"student_id"`
	Semester  int             `db:"semester"`
	FeeHead   string          `db:"fee_head"`
	Amount    decimal.Decimal `db:"amount"`
}

func structures(rows []structureRow) []fee.Structure {
	res := make([]fee.Structure, 0, len(rows))
	for _, row := range rows {
		res = append(res, fee.Structure{
			ProgramID: row.ProgramID,
			StudentID: row.StudentID,
			Semester:  row.Semester,
			FeeHead:   fee.FeeHead(row.FeeHead),
			Amount:    row.Amount,
		})
	}
	return res
}

type structureRepository struct {
	exec core.DBExecutor
}

var _ fee.StructureRepository = (*structureRepository)(nil)

func NewStructureRepository(exec core.DBExecutor) fee.StructureRepository {
	return &structureRepository{exec: exec}
}

func (repo structureRepository) QueryStructures(ctx context.Context) ([]fee.Structure, error) {
	var rows []structureRow
	q := `SELECT program_id, '' AS student_id, semester, fee_head, amount
		FROM fee_structures WHERE student_id IS NULL ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	return structures(rows), nil
}

func (repo structureRepository) QueryStudentStructures(ctx context.Context, studentID string, semester int) ([]fee.Structure, error) {
	var rows []structureRow
	q := `SELECT program_id, student_id, semester, fee_head, amount
		FROM fee_structures WHERE student_id = $1 AND semester = $2 ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, studentID, semester); err != nil {
		return nil, errors.Wrap(err, "querying student fee structures")
	}
	return structures(rows), nil
}

type academicYearRepository struct {
	exec core.DBExecutor
}

var _ fee.AcademicYearRepository = (*academicYearRepository)(nil)

func NewAcademicYearRepository(exec core.DBExecutor) fee.AcademicYearRepository {
	return &academicYearRepository{exec: exec}
}

func (repo academicYearRepository) GetAcademicYear(ctx context.Context, studentID string) (string, error) {
	var label string
	q := `SELECT label FROM student_academic_years WHERE student_id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &label, q, studentID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return "", fee.ErrAcademicYearNotFound
		}
		return "", errors.Wrap(err, "getting academic year")
	}
	return label, nil
}
