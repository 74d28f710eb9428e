package fee

import (
	"text/template"
)

type (
	progressionEmail struct {
		Profile Profile
		Invoice Invoice
	}

	settlementFailedEmail struct {
		Profile Profile
		Invoice Invoice
		Reason  string
	}
)

var (
	tmplFuncs = template.FuncMap{"money": money}

	progressionTemplate = template.Must(template.New("progression").Funcs(tmplFuncs).Parse(
		`Dear {{.Profile.Name}},

You have moved on to semester {{.Invoice.Semester}}.
Invoice {{.Invoice.ID}} ({{.Invoice.AcademicYear}}) of {{money .Invoice.Amount}} has been issued{{with .Invoice.DueDate}} and is due on {{.Format "2006-01-02"}}{{end}}.

Bursar's office
`))

	settlementFailedTemplate = template.Must(template.New("settlement_failed").Funcs(tmplFuncs).Parse(
		`Payment recorded, balance not reconciled.

Student: {{.Profile.StudentID}} {{.Profile.Name}}
Invoice: {{.Invoice.ID}} (semester {{.Invoice.Semester}})
Tuition paid: {{money .Invoice.BaseAmount}}
Reason: {{.Reason}}

Re-save the invoice once the ledger is reachable to settle it.
`))
)
