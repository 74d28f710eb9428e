package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

const profileColumns = `student_id, name, email, program_id, total_program_fee, scholarship_amount,
	current_semester, balance, due, admission_date, first_semester_invoice_id, updated_at`

type profileRow struct {
	StudentID              string          `db:"student_id"`
	Name                   string          `db:"name"`
	Email                  null.String     `db:"email"`
	ProgramID              string          `db:"program_id"`
	TotalProgramFee        decimal.Decimal `db:"total_program_fee"`
	ScholarshipAmount      decimal.Decimal `db:"scholarship_amount"`
	CurrentSemester        int             `db:"current_semester"`
	Balance                decimal.Decimal `db:"balance"`
	Due                    decimal.Decimal `db:"due"`
	AdmissionDate          null.Time       `db:"admission_date"`
	FirstSemesterInvoiceID null.String     `db:"first_semester_invoice_id"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

type semesterFeeRow struct {
	StudentID string          `db:"student_id"`
	Semester  int             `db:"semester"`
	Amount    decimal.Decimal `db:"amount"`
}

func (row profileRow) profile(fees []semesterFeeRow) fee.Profile {
	p := fee.Profile{
		StudentID:              row.StudentID,
		Name:                   row.Name,
		Email:                  row.Email.String,
		ProgramID:              row.ProgramID,
		TotalProgramFee:        row.TotalProgramFee,
		ScholarshipAmount:      row.ScholarshipAmount,
		CurrentSemester:        row.CurrentSemester,
		Balance:                row.Balance,
		Due:                    row.Due,
		AdmissionDate:          row.AdmissionDate.Time,
		FirstSemesterInvoiceID: row.FirstSemesterInvoiceID.String,
	}
	for _, f := range fees {
		if f.StudentID != row.StudentID {
			continue
		}
		if p.PerSemesterFee == nil {
			p.PerSemesterFee = make(map[int]decimal.Decimal)
		}
		p.PerSemesterFee[f.Semester] = f.Amount
	}
	return p
}

type profileRepository struct {
	exec core.DBExecutor
}

var _ fee.ProfileRepository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(exec core.DBExecutor) fee.ProfileRepository {
	return &profileRepository{exec: exec}
}

// trapNoRowsErr maps psql "no rows" err to fee.ErrStudentNotFound
func (repo profileRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return fee.ErrStudentNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo profileRepository) QueryProfiles(ctx context.Context) ([]fee.Profile, error) {
	var rows []profileRow
	q := `SELECT ` + profileColumns + ` FROM student_fee_profiles ORDER BY student_id`
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}

	var fees []semesterFeeRow
	q = `SELECT student_id, semester, amount FROM student_semester_fees`
	if err := sqlx.SelectContext(ctx, repo.exec, &fees, q); err != nil {
		return nil, errors.Wrap(err, "querying semester fees")
	}

	profiles := make([]fee.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.profile(fees))
	}
	return profiles, nil
}

func (repo profileRepository) GetProfile(ctx context.Context, studentID string) (fee.Profile, error) {
	var row profileRow
	q := `SELECT ` + profileColumns + ` FROM student_fee_profiles WHERE student_id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, studentID); err != nil {
		return fee.Profile{}, repo.trapNoRowsErr(err, "getting profile")
	}

	var fees []semesterFeeRow
	q = `SELECT student_id, semester, amount FROM student_semester_fees WHERE student_id = $1`
	if err := sqlx.SelectContext(ctx, repo.exec, &fees, q, studentID); err != nil {
		return fee.Profile{}, errors.Wrap(err, "querying semester fees")
	}
	return row.profile(fees), nil
}

func (repo profileRepository) SetCurrentSemester(ctx context.Context, studentID string, semester int) error {
	q := `UPDATE student_fee_profiles SET current_semester = GREATEST(current_semester, $2), updated_at = now()
		WHERE student_id = $1`
	res, err := repo.exec.ExecContext(ctx, q, studentID, semester)
	if err != nil {
		return errors.Wrap(err, "setting current semester")
	}
	return checkAffected(res, fee.ErrStudentNotFound, "setting current semester")
}

func (repo profileRepository) MarkFirstSemesterBilled(ctx context.Context, studentID, invoiceID string) error {
	q := `UPDATE student_fee_profiles
		SET first_semester_invoice_id = COALESCE(first_semester_invoice_id, $2), updated_at = now()
		WHERE student_id = $1`
	res, err := repo.exec.ExecContext(ctx, q, studentID, invoiceID)
	if err != nil {
		return errors.Wrap(err, "marking first semester billed")
	}
	return checkAffected(res, fee.ErrStudentNotFound, "marking first semester billed")
}

func (repo profileRepository) UpdateDue(ctx context.Context, studentID string, due decimal.Decimal) error {
	q := `UPDATE student_fee_profiles SET due = $2, updated_at = now() WHERE student_id = $1`
	res, err := repo.exec.ExecContext(ctx, q, studentID, due)
	if err != nil {
		return errors.Wrap(err, "updating due")
	}
	return checkAffected(res, fee.ErrStudentNotFound, "updating due")
}
