package main

import (
	"fmt"
	"os"

	"github.com/trezcool/bursar/apps/container"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger, err := container.NewLogger(conf, "admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cli := commandLine{out: os.Stdout}
	var closeFn func() error

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		// migrations run against a bare connection: the fee service would migrate up first
		if conf.Database.Backend == core.BackendPostgres {
			if err = database.CreateIfNotExist(conf); err != nil {
				logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
			}
			db, err := database.Open(conf)
			if err != nil {
				logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
			}
			cli.db = db.DB
			closeFn = db.Close
		}
	} else {
		feeSvc, err := container.NewFeeService(conf, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up fee service: %v", err), err)
		}
		cli.feeSvc = feeSvc
		closeFn = feeSvc.Close
	}

	// start CLI
	err = cli.run(os.Args)

	if closeFn != nil {
		_ = closeFn()
	}
	_ = logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
