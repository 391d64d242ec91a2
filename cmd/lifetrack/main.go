package main

import (
	"os"

	"github.com/lifetrack/lifetrack/app"
	"github.com/lifetrack/lifetrack/report"
)

func run(args []string) error {
	return app.Get().Run(args)
}

func main() {
	err := run(os.Args)
	if err != nil {
		report.Quit(err)
	}
}
