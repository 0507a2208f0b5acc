package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/emadnahed/shtlink/internal/database"
	"github.com/emadnahed/shtlink/internal/repository"
)

// healthReport is printed by the health command.
type healthReport struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Pool      *database.Stats   `json:"pool,omitempty"`
}

func newHealthCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the configured store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := healthReport{
				Status:    "ready",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Checks:    map[string]string{},
			}

			checkErr := checkStore(cmd.Context(), a, timeout)
			if checkErr != nil {
				report.Status = "not ready"
				report.Checks[a.cfg.Store.Backend] = checkErr.Error()
			} else {
				report.Checks[a.cfg.Store.Backend] = "ok"
			}
			if a.cfg.DatabaseEnabled() && checkErr == nil {
				report.Pool = poolStats(a)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return checkErr
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the store")
	return cmd
}

func checkStore(ctx context.Context, a *app, timeout time.Duration) error {
	store, err := do.Invoke[repository.Store](a.injector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return store.HealthCheck(ctx)
}

// poolStats returns the PostgreSQL pool statistics, or nil when the pool
// was never opened.
func poolStats(a *app) *database.Stats {
	pool, err := do.Invoke[*database.Pool](a.injector)
	if err != nil {
		return nil
	}
	return pool.Stats()
}
