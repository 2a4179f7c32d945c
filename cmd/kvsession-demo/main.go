// Command kvsession-demo serves a small sign-in flow backed by kvsession
// storage, for trying out a backend configuration.
//
// Usage:
//
//	KVSESSION_SECRET=$(openssl rand -hex 32) kvsession-demo --config demo.yaml
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	session "github.com/swfrench/kvsession"
	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/internal/retry"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"
)

const minSecretLen = 32

func app() *cli.App {
	return &cli.App{
		Name:  "kvsession-demo",
		Usage: "Serve a demo sign-in flow backed by kvsession storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (KVSESSION_* variables override it)",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address",
				Value: "localhost:8080",
			},
			&cli.StringFlag{
				Name:     "secret",
				Usage:    "Hex-encoded cookie signing key (at least 32 bytes)",
				EnvVars:  []string{"KVSESSION_SECRET"},
				Required: true,
			},
			&cli.IntFlag{
				Name:  "ready-attempts",
				Usage: "Backend reachability checks before giving up",
				Value: 8,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Action: serve,
	}
}

func parseSecret(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid hex: %w", err)
	}
	if len(key) < minSecretLen {
		return nil, fmt.Errorf("secret is %d bytes, need at least %d", len(key), minSecretLen)
	}
	return key, nil
}

// waitReady pings the backend until it responds, with backoff. Only
// reachability failures are retried.
func waitReady(ctx context.Context, b *session.Backend, attempts int) error {
	policy := &retry.Backoff{Base: 250 * time.Millisecond, Growth: 2, Jitter: 0.2}
	return policy.Do(ctx, func(ctx context.Context) error {
		err := b.Ping(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, driver.ErrBackendUnavailable):
			slog.Warn("Storage backend not ready", "error", err)
			return err
		default:
			return retry.Permanent(err)
		}
	}, attempts)
}

func serve(c *cli.Context) error {
	key, err := parseSecret(c.String("secret"))
	if err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	b, err := session.NewBackend(cfg, &session.BackendOptions{Registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("Failed to close storage backend", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := waitReady(ctx, b, c.Int("ready-attempts")); err != nil {
		return fmt.Errorf("storage backend unavailable: %w", err)
	}
	m, err := session.NewMiddlewareFromConfig(b, key, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.String("listen"),
		Handler:           newHandler(m, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("Serving", "addr", srv.Addr, "engine", cfg.Engine)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := app().Run(os.Args); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}
