package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

// AcademicYearNA is the label used when no academic year can be derived.
const AcademicYearNA = "NA"

// AcademicYearDeriver labels invoices with the student's academic year.
type AcademicYearDeriver struct {
	repo   AcademicYearRepository
	logger core.Logger
}

func NewAcademicYearDeriver(repo AcademicYearRepository, logger core.Logger) *AcademicYearDeriver {
	return &AcademicYearDeriver{repo: repo, logger: logger}
}

// Derive returns the stored academic year of the student when there is one, otherwise the
// "YYYY-YYYY" year computed from the admission date, otherwise AcademicYearNA. It never fails.
func (d *AcademicYearDeriver) Derive(ctx context.Context, studentID string, admission time.Time) string {
	if d.repo != nil {
		label, err := d.repo.GetAcademicYear(ctx, studentID)
		switch {
		case err == nil && label != "":
			return label
		case err != nil && errors.Cause(err) != ErrAcademicYearNotFound:
			d.logger.Warn(fmt.Sprintf("fetching academic year of %s: %v", studentID, err), err)
		}
	}
	return AcademicYearFromDate(admission)
}

// AcademicYearFromDate returns "Y-(Y+1)" where Y is the year of t, or AcademicYearNA for a zero time.
func AcademicYearFromDate(t time.Time) string {
	if t.IsZero() {
		return AcademicYearNA
	}
	y := t.Year()
	return fmt.Sprintf("%d-%d", y, y+1)
}
