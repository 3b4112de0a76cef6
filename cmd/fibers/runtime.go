package main

import (
	"github.com/Swind/go-fibers/core"
	"github.com/urfave/cli/v2"
)

// loadConfig resolves the global flags into a runtime config.
func loadConfig(c *cli.Context) (*core.RuntimeConfig, error) {
	cfg := core.DefaultRuntimeConfig()
	if path := c.String("config"); path != "" {
		loaded, err := core.LoadRuntimeConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if w := c.Int("workers"); w > 0 {
		cfg.Workers = w
		cfg.StealRetries = 0
	}
	if c.Bool("verbose") {
		cfg.Logger = core.NewDefaultLogger()
		cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: cfg.Logger}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func startRuntime(cfg *core.RuntimeConfig) (*core.Runtime, error) {
	rt, err := core.NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Shutdown()
		return nil, err
	}
	return rt, nil
}
