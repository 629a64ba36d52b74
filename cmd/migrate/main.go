package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/joao-fontenele/posflow/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var migrationsPath string

	open := func() (*migrate.Migrate, error) {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		if err := cfg.Require("POSTGRES_URL"); err != nil {
			return nil, err
		}
		m, err := migrate.New(migrationsPath, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("create migrate instance: %w", err)
		}
		return m, nil
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the posflow schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := os.Getenv("MIGRATIONS_PATH")
	if defaultPath == "" {
		defaultPath = "file://migrations"
	}
	root.PersistentFlags().StringVar(&migrationsPath, "path", defaultPath, "migrations source URL")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()

			err = m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no pending migrations")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration up failed: %w", err)
			}
			logger.Info("migrations applied successfully")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}

			m, err := open()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()

			err = m.Steps(-steps)
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no migrations to rollback")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			logger.Info("migrations rolled back successfully", slog.Int("steps", steps))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info("no migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied without running it, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer, got %q", args[0])
			}

			m, err := open()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force failed: %w", err)
			}
			logger.Info("forced migration version", slog.Int("version", version))
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
