package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/coachdesk/internal/api"
	"github.com/soaringjerry/coachdesk/internal/config"
	"github.com/soaringjerry/coachdesk/internal/db"
	"github.com/soaringjerry/coachdesk/internal/logger"
)

const initialMigration = "0001_init.sql"

// freshSchema reports whether this run created the tables, i.e. the database was empty.
func freshSchema(applied []string) bool {
	for _, name := range applied {
		if name == initialMigration {
			return true
		}
	}
	return false
}

// importSnapshot copies a memory-store snapshot into dst. A missing snapshot is not an
// error; it only means there is nothing to carry over.
func importSnapshot(ctx context.Context, log *logger.Logger, snapshotPath string, dst api.Store) (bool, error) {
	if snapshotPath == "" {
		return false, nil
	}
	snap, err := api.LoadSnapshot(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	log.Info("empty database, importing snapshot", "path", snapshotPath,
		"responses", len(snap.Responses), "courses", len(snap.Courses), "members", len(snap.Members))
	if err := api.CopySnapshot(ctx, snap, dst); err != nil {
		return false, fmt.Errorf("copy snapshot: %w", err)
	}
	log.Info("snapshot import completed")
	return true, nil
}

func newMigrateCommand(configPath *string) *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations and optionally import a memory-store snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.DB.Driver == "memory" {
				return errors.New("migrate needs db.driver sqlite3 or postgres")
			}
			log, err := logger.New(cfg.Server.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			sqlDB, err := db.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			applied, err := db.RunMigrations(ctx, sqlDB, cfg.DB.Driver, cfg.DB.MigrationsDir)
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			if snapshot == "" {
				return nil
			}
			st, err := db.NewSQLStore(sqlDB, cfg.DB.Driver, log)
			if err != nil {
				return err
			}
			imported, err := importSnapshot(ctx, log, snapshot, st)
			if err != nil {
				return err
			}
			if !imported {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshot at", snapshot)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "memory-store snapshot to import")
	return cmd
}
