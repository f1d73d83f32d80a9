package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/govai/console/internal"
	"github.com/govai/console/internal/repository"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// consoleEnv holds the services a command runs against.
type consoleEnv struct {
	cfg   *internal.Config
	db    *sql.DB
	plans service.PlanService
	quota service.QuotaService
	files storage.Storage
	close func()
}

// envOpener builds a consoleEnv. Tests substitute an in-memory one.
type envOpener func(ctx context.Context) (*consoleEnv, error)

// openDatabaseEnv connects with the same environment as the server.
func openDatabaseEnv(ctx context.Context) (*consoleEnv, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := repository.NewStore(db)
	plans := service.NewPlanService(store, nil, logger)
	costs, err := service.NewCostService(store, plans, service.CostConfig{}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	quota := service.NewQuotaService(store, plans, costs, nil, service.QuotaConfig{
		WriteRetries:   cfg.UsageWriteRetries,
		WriteBackoff:   cfg.UsageWriteBackoff,
		ReservationTTL: cfg.ReservationTTL,
	}, logger)

	var files storage.Storage
	switch cfg.StorageProvider {
	case "s3", "r2":
		files, err = storage.NewS3Storage(storage.S3Config{
			AccountID:       cfg.S3AccountID,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3BucketName,
			Region:          cfg.S3Region,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	default:
		files, err = storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.LocalStoragePath, BaseURL: cfg.LocalStorageURL}, logger)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &consoleEnv{
		cfg:   cfg,
		db:    db,
		plans: plans,
		quota: quota,
		files: files,
		close: func() { db.Close() },
	}, nil
}

// cli carries state shared by every subcommand.
type cli struct {
	open   envOpener
	env    *consoleEnv
	output string
}

func newRootCmd(open envOpener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:   "govaictl",
		Short: "Administer GovAI Console plans, organizations and usage",
		Long: `govaictl manages plan limits, moves organizations between plans,
inspects monthly usage and reconciles the storage ledger. It reads the
same environment as the server (DATABASE_URL, SUPABASE_JWT_SECRET, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.env != nil && c.env.close != nil {
				c.env.close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		c.plansCmd(),
		c.orgsCmd(),
		c.tokenCmd(),
		c.storageCmd(),
		c.migrateCmd(),
	)
	return root
}

// connect opens the environment on first use.
func (c *cli) connect(cmd *cobra.Command) (*consoleEnv, error) {
	if c.env != nil {
		return c.env, nil
	}
	env, err := c.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	c.env = env
	return env, nil
}

func (c *cli) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), c.output)
}
