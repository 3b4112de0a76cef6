// Command fibers drives a fibers runtime from the command line: load and
// print configs, run the spawn and mutex benchmarks, and serve runtime
// metrics over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fibers",
		Usage: "run and inspect an M:N task runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "runtime config file (TOML)",
				EnvVars: []string{"FIBERS_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "worker count, overriding the config",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log runtime events to stderr",
			},
		},
		Commands: []*cli.Command{
			ConfigCommand(),
			BenchCommand(),
			ServeCommand(),
		},
	}
}
