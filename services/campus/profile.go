package campussvc

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/fee"
)

var (
	studentIDKeys  = []string{"studentid", "rollno", "rollnumber", "enrollmentno", "id"}
	studentKeyList = []string{"studentid", "student", "rollno", "rollnumber"}
)

func profileFromRecord(rec record) fee.Profile {
	p := fee.Profile{
		StudentID:              rec.str(studentIDKeys...),
		Name:                   rec.str("name", "studentname", "fullname"),
		Email:                  rec.str("email", "emailid", "studentemail"),
		ProgramID:              rec.str("programid", "program", "courseid", "course"),
		TotalProgramFee:        rec.amount("totalprogramfee", "totalfee", "programfee", "coursefee"),
		ScholarshipAmount:      rec.amount("scholarshipamount", "scholarship"),
		CurrentSemester:        rec.num("currentsemester", "semester", "sem"),
		Balance:                rec.amount("balance", "balanceamount"),
		Due:                    rec.amount("due", "dueamount"),
		FirstSemesterInvoiceID: rec.str("firstsemesterinvoiceid"),
		PerSemesterFee:         semesterFees(rec),
	}
	if adm := rec.date("admissiondate", "dateofadmission", "admittedon", "admissionon"); adm != nil {
		p.AdmissionDate = *adm
	}
	return p
}

// semesterFees reads per-semester fees given either as {"1": 40000, ...}
// or as [{"semester": 1, "amount": 40000}, ...].
func semesterFees(rec record) map[int]decimal.Decimal {
	v, ok := rec.lookup("persemesterfee", "persemesterfees", "semesterfees", "semesterfee")
	if !ok {
		return nil
	}
	fees := make(map[int]decimal.Decimal)
	switch sf := v.(type) {
	case map[string]interface{}:
		for k, amt := range sf {
			if n, err := strconv.Atoi(k); err == nil {
				fees[n] = toDecimal(amt)
			}
		}
	case []interface{}:
		for _, r := range records(sf) {
			if n := r.num("semester", "sem"); n > 0 {
				fees[n] = r.amount("amount", "fee")
			}
		}
	}
	return fees
}

func (c *Client) QueryProfiles(ctx context.Context) ([]fee.Profile, error) {
	recs, err := c.list(ctx, "/students", nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	profiles := make([]fee.Profile, 0, len(recs))
	for _, rec := range recs {
		if p := profileFromRecord(rec); p.StudentID != "" {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].StudentID < profiles[j].StudentID })
	return profiles, nil
}

func (c *Client) GetProfile(ctx context.Context, studentID string) (fee.Profile, error) {
	profiles, err := c.QueryProfiles(ctx)
	if err != nil {
		return fee.Profile{}, err
	}
	for _, p := range profiles {
		if p.StudentID == studentID {
			return p, nil
		}
	}
	return fee.Profile{}, fee.ErrStudentNotFound
}

func (c *Client) SetCurrentSemester(ctx context.Context, studentID string, semester int) error {
	p, err := c.GetProfile(ctx, studentID)
	if err != nil {
		return err
	}
	if p.CurrentSemester >= semester {
		return nil
	}
	return c.updateStudent(ctx, studentID, map[string]interface{}{"currentSemester": semester})
}

func (c *Client) MarkFirstSemesterBilled(ctx context.Context, studentID, invoiceID string) error {
	p, err := c.GetProfile(ctx, studentID)
	if err != nil {
		return err
	}
	if p.FirstSemesterBilled() {
		return nil
	}
	return c.updateStudent(ctx, studentID, map[string]interface{}{
		"firstSemesterInvoiceId": invoiceID,
		"firstSemesterBilled":    true,
	})
}

func (c *Client) UpdateDue(ctx context.Context, studentID string, due decimal.Decimal) error {
	return c.updateStudent(ctx, studentID, map[string]interface{}{"due": due})
}
