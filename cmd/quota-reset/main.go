// Command quota-reset runs one quota reset outside the server, for cron
// jobs and recovery after a missed midnight.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/DukeRupert/regdesk/internal"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/DukeRupert/regdesk/internal/scheduler"
	"github.com/DukeRupert/regdesk/internal/service"
)

func run() error {
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum time for the reset")
	history := flag.Int("history", 0, "print the last N runs instead of resetting")
	flag.Parse()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := internal.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := internal.RunMigrations(db.DB, cfg.DatabaseDriver); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	repo := repository.New(db)
	resets := scheduler.New(service.NewUsageStore(db, logger), repo, logger)

	if *history > 0 {
		runs, err := resets.History(ctx, *history)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("%s  %-9s %-7s users=%d quotas=%d %dms %s\n",
				r.CreatedAt.Format(time.RFC3339), r.Trigger, r.Status,
				r.UsersReset, r.QuotasReset, r.ExecutionTimeMs, r.ErrorMessage)
		}
		return nil
	}

	last, err := resets.ForceReset(ctx)
	if errors.Is(err, scheduler.ErrResetInProgress) || last == nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("reset %s failed: %w", last.ID, err)
	}

	logger.Info("Quota reset complete",
		"reset_id", last.ID,
		"users_reset", last.UsersReset,
		"quotas_reset", last.QuotasReset,
		"duration_ms", last.ExecutionTimeMs,
	)
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
