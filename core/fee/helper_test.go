package fee

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var _ core.Logger = nopLogger{}

func amt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(y int, m time.Month, d int) *time.Time {
	t := day(y, m, d)
	return &t
}

// stubStructures serves fixed structures and counts the program-wide queries.
type stubStructures struct {
	program    []Structure
	perStudent []Structure
	studentErr error
	queries    int
}

func (s *stubStructures) QueryStructures(context.Context) ([]Structure, error) {
	s.queries++
	return s.program, nil
}

func (s *stubStructures) QueryStudentStructures(_ context.Context, studentID string, semester int) ([]Structure, error) {
	if s.studentErr != nil {
		return nil, s.studentErr
	}
	var res []Structure
	for _, st := range s.perStudent {
		if st.StudentID == studentID && st.Semester == semester {
			res = append(res, st)
		}
	}
	return res, nil
}

type stubAcademicYears struct {
	labels map[string]string
	err    error
}

func (s stubAcademicYears) GetAcademicYear(_ context.Context, studentID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if label, ok := s.labels[studentID]; ok {
		return label, nil
	}
	return "", ErrAcademicYearNotFound
}
