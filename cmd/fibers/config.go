package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect runtime configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "print",
				Usage:  "print the effective config as TOML",
				Action: configPrintAction,
			},
		},
	}
}

func configPrintAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	data, err := cfg.EncodeTOML()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to encode config: %v", err), 1)
	}
	_, err = c.App.Writer.Write(data)
	return err
}
