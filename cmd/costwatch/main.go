package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/costwatch/internal/cache"
	"github.com/janekbaraniewski/costwatch/internal/config"
	"github.com/janekbaraniewski/costwatch/internal/engine"
	"github.com/janekbaraniewski/costwatch/internal/logs"
	"github.com/janekbaraniewski/costwatch/internal/quota"
	"github.com/janekbaraniewski/costwatch/internal/store"
)

func main() {
	if os.Getenv("COSTWATCH_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:   "costwatch",
		Short: "costwatch keeps a durable cache of CLI usage costs and quota pacing.",
	}
	root.AddCommand(newStatusCommand(cfg))
	root.AddCommand(newWatchCommand(cfg))
	root.AddCommand(newCleanupCommand(cfg))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine wires the coordinator from explicit collaborators: the log
// scanner, the aggregation cache, the persistent store, the quota client and
// the price table all come in through construction.
func buildEngine(cfg config.Config) (*engine.Coordinator, *store.Store, error) {
	prices, err := config.LoadPriceTable()
	if err != nil {
		log.Printf("pricing: %v (using defaults)", err)
	}

	// An unopenable store after self-heal is fatal: nothing can be persisted.
	s, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening persistent store: %w", err)
	}

	scanner := logs.NewScanner(cfg.LogRoot)
	quotaInterval := time.Duration(cfg.QuotaIntervalSeconds) * time.Second
	client := quota.NewClient(cfg.QuotaBaseURL, func() (string, error) {
		creds, err := config.LoadCredentials()
		if err != nil {
			return "", err
		}
		return creds.QuotaToken, nil
	}, quotaInterval)

	co := engine.New(scanner, cache.New(scanner), s, client, prices, engine.Options{
		RefreshInterval: time.Duration(cfg.RefreshIntervalSeconds) * time.Second,
		QuotaInterval:   quotaInterval,
		RetentionDays:   cfg.RetentionDays,
	})
	return co, s, nil
}

func newStatusCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run one refresh cycle and print current costs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			co, s, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := co.Bootstrap(ctx); err != nil {
				return err
			}
			co.RunCycle(ctx)

			fmt.Print(renderStatus(co.Snapshot()))
			return nil
		},
	}
}

func newWatchCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache synchronized with the session logs",
		RunE: func(_ *cobra.Command, _ []string) error {
			co, s, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := co.Bootstrap(ctx); err != nil {
				return err
			}

			watcher, err := engine.NewWatcher(cfg.LogRoot,
				time.Duration(cfg.DebounceSeconds)*time.Second,
				func() { co.Refresh() })
			if err != nil {
				log.Printf("file watch unavailable, relying on periodic ticks: %v", err)
			} else {
				if err := watcher.Start(); err != nil {
					log.Printf("file watch failed to start: %v", err)
				}
				defer watcher.Close()
			}

			co.Run(ctx)
			return nil
		},
	}
}

func newCleanupCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune daily rows beyond the retention horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.Open(cfg.StorePath)
			if err != nil {
				return fmt.Errorf("opening persistent store: %w", err)
			}
			defer s.Close()

			removed, err := s.Cleanup(cmd.Context(), cfg.RetentionDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d daily rows older than %d days\n", removed, cfg.RetentionDays)
			return nil
		},
	}
}
