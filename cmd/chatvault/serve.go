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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/chatvault"
	"github.com/poiesic/chatvault/ingestion"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
			&cli.StringFlag{
				Name:  "resume-schedule",
				Usage: "Cron spec for resuming unfinished indexing, e.g. \"@every 10m\"",
			},
		},
		Action: withVault(serveCommand),
	}
}

func serveCommand(c *cli.Context, v *chatvault.Vault) error {
	cfg := v.Config().Server
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("resume-schedule") {
		cfg.ResumeSchedule = c.String("resume-schedule")
	}

	handler, err := v.Handler()
	if err != nil {
		return err
	}

	ctx := c.Context
	scheduler, err := startResumeSchedule(ctx, cfg.ResumeSchedule, v.Pipeline(), slog.Default())
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	slog.Info("shutting down http server", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Resumer finishes indexing that an earlier run left incomplete.
type Resumer interface {
	ResumePending(ctx context.Context, limit int) (*ingestion.Report, error)
}

// startResumeSchedule runs ResumePending on spec until ctx ends.
// An empty spec schedules nothing and returns a nil cron.
func startResumeSchedule(ctx context.Context, spec string, resumer Resumer, logger *slog.Logger) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}

	logger = logger.With("component", "resume-schedule")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		report, err := resumer.ResumePending(ctx, 0)
		if err != nil {
			logger.Error("resume failed", "err", err)
			return
		}
		if report.Total > 0 {
			logger.Info("resumed pending conversations",
				"total", report.Total, "resumed", report.Resumed, "failed", report.Failed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid resume schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("resume schedule started", "spec", spec)
	return c, nil
}

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "Serve MCP tools over stdin and stdout",
		Action: withVault(mcpCommand),
	}
}

func mcpCommand(c *cli.Context, v *chatvault.Vault) error {
	s, err := v.MCPServer()
	if err != nil {
		return err
	}
	return s.Serve(c.Context, os.Stdin, os.Stdout)
}
