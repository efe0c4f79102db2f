// Package config loads process configuration from command-line flags,
// generalized into a struct populated by the standard library flag
// package: no CLI/config framework (cobra, viper) appears anywhere in
// the reference material, so configuration loading stays on flag plus
// struct defaults, justified in DESIGN.md.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config holds every process-entry input the CLI surface names:
// port, step interval, optional CSV/JSON/binary file path, optional
// random seed, log level.
type Config struct {
	Address          string
	ControlPort      int
	WebSocketPort    int
	StepInterval     time.Duration
	DataSourcePath   string
	DataSourceFormat string // "csv", "jsonl", "binary"; ignored if DataSourcePath is empty
	Seed             int64
	LogLevel         string
	DepthLevels      int
}

// Defaults mirrors the reference simulation loop's documented defaults
// (1s step interval, port 9001, top-10 depth).
func Defaults() Config {
	return Config{
		Address:       "0.0.0.0",
		ControlPort:   9001,
		WebSocketPort: 9002,
		StepInterval:  time.Second,
		Seed:          1,
		LogLevel:      "info",
		DepthLevels:   10,
	}
}

// Parse populates a Config from argv, starting from Defaults().
func Parse(args []string) (Config, error) {
	cfg := Defaults()
	fs := flag.NewFlagSet("lobsim", flag.ContinueOnError)

	fs.StringVar(&cfg.Address, "address", cfg.Address, "bind address for the control and websocket servers")
	fs.IntVar(&cfg.ControlPort, "control-port", cfg.ControlPort, "TCP port for the JSON control channel")
	fs.IntVar(&cfg.WebSocketPort, "ws-port", cfg.WebSocketPort, "HTTP port serving the websocket depth feed")
	fs.DurationVar(&cfg.StepInterval, "step-interval", cfg.StepInterval, "fixed interval between simulator steps")
	fs.StringVar(&cfg.DataSourcePath, "data-file", cfg.DataSourcePath, "optional historical event file (csv, jsonl, or binary)")
	fs.StringVar(&cfg.DataSourceFormat, "data-format", cfg.DataSourceFormat, "format of -data-file: csv, jsonl, or binary")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "deterministic PRNG seed")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "zerolog level: debug, info, warn, error")
	fs.IntVar(&cfg.DepthLevels, "depth-levels", cfg.DepthLevels, "number of price levels per side in published snapshots")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations Parse's flag types alone cannot catch.
func (c Config) Validate() error {
	if c.StepInterval <= 0 {
		return fmt.Errorf("config: step-interval must be > 0")
	}
	if c.DataSourcePath != "" {
		switch c.DataSourceFormat {
		case "csv", "jsonl", "binary":
		default:
			return fmt.Errorf("config: data-format must be one of csv, jsonl, binary when data-file is set, got %q", c.DataSourceFormat)
		}
	}
	if c.DepthLevels <= 0 {
		return fmt.Errorf("config: depth-levels must be > 0")
	}
	return nil
}
