package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/trezcool/bursar/core/fee"
)

var (
	errHelp = errors.New("help provided")
	errNoDB = errors.New("migrations need the postgres backend")
)

type commandLine struct {
	db     *sql.DB // nil unless the backend is postgres
	feeSvc fee.ServiceInterface
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  progress [-student ID] [-today YYYY-MM-DD] - issue next semester invoices to the students due")
	fmt.Fprintln(cli.out, "  balances -id ID[,ID...] - print the students' balances")
	fmt.Fprintln(cli.out, "  reload - reload the fee schedules")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	progressCmd := flag.NewFlagSet("progress", flag.ContinueOnError)
	progressCmd.SetOutput(cli.out)
	progressStudent := progressCmd.String("student", "", "Only evaluate this student.")
	progressToday := progressCmd.String("today", "", "Evaluate as of this date (YYYY-MM-DD). Defaults to today.")

	balancesCmd := flag.NewFlagSet("balances", flag.ContinueOnError)
	balancesCmd.SetOutput(cli.out)
	balancesIDs := balancesCmd.String("id", "", "Comma separated student ids.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoDB
		}
		return cli.migrate(args[2:])
	case "progress":
		if err := progressCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		today := fee.NowFunc().UTC()
		if *progressToday != "" {
			var err error
			if today, err = time.Parse("2006-01-02", *progressToday); err != nil {
				progressCmd.Usage()
				return errHelp
			}
		}
		return cli.progress(strings.TrimSpace(*progressStudent), today)
	case "balances":
		if err := balancesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		var ids []string
		for _, id := range strings.Split(*balancesIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			balancesCmd.Usage()
			return errHelp
		}
		return cli.balances(ids)
	case "reload":
		return cli.reload()
	default:
		cli.printUsage()
		return errHelp
	}
}
