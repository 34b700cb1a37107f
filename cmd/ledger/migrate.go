package main

import (
	"context"
	"errors"
	"fmt"

	pgStorage "payment-ledger/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

var migrateStatusOnly bool

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL schema",
		Long: `Apply pending schema migrations to the configured PostgreSQL database.

Examples:
  ledger migrate
  ledger migrate --status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(contextOrBackground(cmd.Context()))
		},
	}
	cmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "list migrations without applying them")
	return cmd
}

func runMigrate(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.InMemory() {
		return errors.New("database.driver is memory, nothing to migrate")
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	migrations, err := pgStorage.LoadMigrations()
	if err != nil {
		return err
	}
	migrator := pgStorage.NewMigrator(pool, migrations, log)

	if migrateStatusOnly {
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%-40s %s\n", s.Version, state)
		}
		return nil
	}

	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	for _, v := range applied {
		fmt.Printf("applied %s\n", v)
	}
	return nil
}
