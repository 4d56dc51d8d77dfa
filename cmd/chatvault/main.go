// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chatvault"
	"github.com/poiesic/chatvault/config"
	"github.com/poiesic/chatvault/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	metaConfig = "config"
	metaFlush  = "telemetry-flush"
)

// openVault is replaced in tests to inject a mock AI provider.
var openVault = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*chatvault.Vault, error) {
	return chatvault.Open(ctx, cfg, chatvault.WithLogger(logger))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "chatvault",
		Usage:   "Semantic knowledge base for exported AI chat conversations",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a .toml or .yaml configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file with CHATVAULT_* variables",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB directory (overrides storage settings)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  flushTelemetry,
		Commands: []*cli.Command{
			importCmd(),
			resumeCmd(),
			searchCmd(),
			reembedCmd(),
			retagCmd(),
			tagsCmd(),
			serveCmd(),
			mcpCmd(),
		},
	}
}

// setup loads the configuration, applies global flag overrides, then
// installs the logger and error reporting.
func setup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	flush := telemetry.Init(telemetry.Config{
		DSN:              cfg.Telemetry.SentryDSN,
		Environment:      cfg.Telemetry.Environment,
		Release:          "chatvault@" + version,
		TracesSampleRate: cfg.Telemetry.SampleRate,
	}, logger)

	c.App.Metadata = map[string]any{
		metaConfig: cfg,
		metaFlush:  flush,
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    c.String("config"),
		EnvFile: c.String("env-file"),
	})
	if err != nil {
		return nil, err
	}

	if c.IsSet("db") {
		cfg.Storage.Backend = "badger"
		cfg.Storage.Path = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func flushTelemetry(c *cli.Context) error {
	if flush, ok := c.App.Metadata[metaFlush].(func()); ok {
		flush()
	}
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// withVault opens the vault for one command and reports the command's error.
func withVault(run func(c *cli.Context, v *chatvault.Vault) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		v, err := openVault(c.Context, configFrom(c), slog.Default())
		if err != nil {
			telemetry.CaptureError(c.Context, c.Command.Name, err)
			return fmt.Errorf("failed to open vault: %w", err)
		}
		defer v.Close()

		if err := run(c, v); err != nil {
			telemetry.CaptureError(c.Context, c.Command.Name, err)
			return err
		}
		return nil
	}
}

func setupLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger, nil
}
