package campussvc

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/bursar/core/fee"
)

func structureFromRecord(rec record) fee.Structure {
	head := fee.FeeHead(rec.str("feehead", "head", "feetype", "type"))
	if !head.Valid() {
		head = fee.FeeHeadTuition
	}
	return fee.Structure{
		ProgramID: rec.str("programid", "program", "courseid", "course"),
		StudentID: rec.str(studentKeyList...),
		Semester:  rec.num("semester", "sem"),
		FeeHead:   head,
		Amount:    rec.amount("amount", "fee", "feeamount"),
	}
}

func (c *Client) QueryStructures(ctx context.Context) ([]fee.Structure, error) {
	recs, err := c.list(ctx, "/fee-structures", nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	structures := make([]fee.Structure, 0, len(recs))
	for _, rec := range recs {
		if s := structureFromRecord(rec); s.StudentID == "" {
			structures = append(structures, s)
		}
	}
	return structures, nil
}

func (c *Client) QueryStudentStructures(ctx context.Context, studentID string, semester int) ([]fee.Structure, error) {
	query := map[string]string{"studentId": studentID, "semester": strconv.Itoa(semester)}
	recs, err := c.list(ctx, "/fee-structures", query)
	if err != nil {
		return nil, errors.Wrap(err, "querying student fee structures")
	}
	structures := make([]fee.Structure, 0, len(recs))
	for _, rec := range recs {
		s := structureFromRecord(rec)
		if s.StudentID == "" {
			s.StudentID = studentID
		}
		if s.StudentID == studentID && s.Semester == semester {
			structures = append(structures, s)
		}
	}
	return structures, nil
}

// GetAcademicYear reads the label from the studentId -> label mapping,
// answered either as an object or as a list of records.
func (c *Client) GetAcademicYear(ctx context.Context, studentID string) (string, error) {
	var payload interface{}
	if err := c.do(ctx, rest.Get, "/student-academic-year", nil, nil, &payload); err != nil {
		return "", errors.Wrap(err, "querying academic years")
	}

	if m, ok := payload.(map[string]interface{}); ok {
		if label, ok := m[studentID].(string); ok && label != "" {
			return label, nil
		}
	}
	for _, rec := range records(payload) {
		if rec.str(studentKeyList...) == studentID {
			if label := rec.str("academicyear", "year", "label"); label != "" {
				return label, nil
			}
		}
	}
	return "", fee.ErrAcademicYearNotFound
}
