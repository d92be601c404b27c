// Package cli implements billingctl, the operator tool for the billing service.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice-billing/internal/app"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/jobs"
	"github.com/odyssey-erp/backoffice-billing/migrations"
)

// Enqueuer submits integrity scans to the job queue.
type Enqueuer interface {
	EnqueueLedgerIntegrity(ctx context.Context, businessID int64) (*asynq.TaskInfo, error)
	Close() error
}

// Deps lets tests replace the database and queue.
type Deps struct {
	Logger   *slog.Logger
	Migrate  func(ctx context.Context) ([]string, error)
	Store    func(ctx context.Context) (jobs.IntegrityStore, func(), error)
	Enqueuer func() (Enqueuer, error)
}

// NewRootCmd assembles the command tree.
func NewRootCmd(deps Deps) *cobra.Command {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate the billing service: schema migrations and ledger checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(deps), newLedgerCmd(deps))
	return root
}

// Execute runs billingctl against the configured environment.
func Execute() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	cmd := NewRootCmd(DefaultDeps(cfg, logger))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// DefaultDeps connects to Postgres and redis on demand.
func DefaultDeps(cfg *app.Config, logger *slog.Logger) Deps {
	open := func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	}
	return Deps{
		Logger: logger,
		Migrate: func(ctx context.Context) ([]string, error) {
			pool, err := open(ctx)
			if err != nil {
				return nil, err
			}
			defer pool.Close()
			return migrations.Apply(ctx, pool, logger)
		},
		Store: func(ctx context.Context) (jobs.IntegrityStore, func(), error) {
			pool, err := open(ctx)
			if err != nil {
				return nil, nil, err
			}
			return jobs.NewIntegrityStore(pool), pool.Close, nil
		},
		Enqueuer: func() (Enqueuer, error) {
			return jobs.NewClient(cfg.RedisOptions().AsynqOpts())
		},
	}
}
