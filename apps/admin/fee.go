package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/bursar/core/fee"
)

// progress evaluates one student, or every student when studentID is empty.
func (cli *commandLine) progress(studentID string, today time.Time) error {
	ctx := context.Background()

	var progs []fee.Progression
	if studentID != "" {
		prog, err := cli.feeSvc.Progress(ctx, studentID, today)
		if err != nil {
			return err
		}
		progs = append(progs, prog)
	} else {
		var err error
		if progs, err = cli.feeSvc.ProgressAll(ctx, today); err != nil {
			return err
		}
	}

	var failed int
	for _, prog := range progs {
		if prog.Error != "" {
			failed++
		}
		fmt.Fprintln(cli.out, describeProgression(prog))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d students failed", failed, len(progs))
	}
	return nil
}

func describeProgression(prog fee.Progression) string {
	switch {
	case prog.Error != "":
		return fmt.Sprintf("%s: error: %s", prog.StudentID, prog.Error)
	case prog.Advanced && prog.Invoice != nil:
		return fmt.Sprintf("%s: semester %d -> %d, invoice %s of %s (%d days)",
			prog.StudentID, prog.FromSemester, prog.ToSemester, prog.Invoice.ID, prog.Invoice.Amount.StringFixed(2), prog.DaysElapsed)
	case prog.Triggered && len(prog.Notices) > 0:
		return fmt.Sprintf("%s: %s", prog.StudentID, prog.Notices[0].Message)
	case prog.LastRelevantDate == nil:
		return fmt.Sprintf("%s: no relevant date", prog.StudentID)
	}
	return fmt.Sprintf("%s: not due (%d days)", prog.StudentID, prog.DaysElapsed)
}

func (cli *commandLine) balances(studentIDs []string) error {
	readings := cli.feeSvc.Balances(context.Background(), studentIDs)

	var failed int
	for _, r := range readings {
		if r.Error != "" {
			failed++
			fmt.Fprintf(cli.out, "%s\terror: %s\n", r.StudentID, r.Error)
			continue
		}
		fmt.Fprintf(cli.out, "%s\t%s\n", r.StudentID, r.Balance.StringFixed(2))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d balances could not be read", failed, len(readings))
	}
	return nil
}

func (cli *commandLine) reload() error {
	if err := cli.feeSvc.ReloadSchedules(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "fee schedules reloaded")
	return nil
}
