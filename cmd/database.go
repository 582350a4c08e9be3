package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/postgres"
	"github.com/tesola/staking-sync/pkg/postgres/migrations"
	"github.com/tesola/staking-sync/pkg/snapshot"
)

var runDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage the mirror database",
}

var migrateDatabaseCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply pending migrations to the mirror database",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		pg, _, err := openDatabase(cfg, l)
		if err != nil {
			return err
		}
		defer pg.Db.Close()

		l.Sugar().Info("Database migrations complete")
		return nil
	},
}

var listMigrationsCmd = &cobra.Command{
	Use:          "migrations",
	Short:        "List the migrations recorded as applied",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		pg, err := postgres.NewPostgres(postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig))
		if err != nil {
			return fmt.Errorf("failed to setup postgres connection: %w", err)
		}
		defer pg.Db.Close()

		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		if err != nil {
			return fmt.Errorf("failed to create gorm instance: %w", err)
		}

		applied, err := migrations.NewMigrator(pg.Db, grm, l, cfg).Applied()
		if err != nil {
			return printFailure(err)
		}
		for _, m := range applied {
			fmt.Printf("%s\t%s\n", m.CreatedAt.Format("2006-01-02T15:04:05Z"), m.Name)
		}
		return nil
	},
}

var snapshotDatabaseCmd = &cobra.Command{
	Use:          "snapshot",
	Short:        "Dump the mirror tables to a file with pg_dump",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		snapshotCfg := snapshot.SnapshotConfigFromDbConfig(&cfg.DatabaseConfig)
		snapshotCfg.OutputFile, _ = cmd.Flags().GetString("output-file")

		svc, err := snapshot.NewSnapshotService(snapshotCfg, l)
		if err != nil {
			return err
		}
		if err := svc.CreateSnapshot(); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	},
}

var restoreDatabaseCmd = &cobra.Command{
	Use:          "restore",
	Short:        "Restore the mirror tables from a pg_dump file",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		snapshotCfg := snapshot.SnapshotConfigFromDbConfig(&cfg.DatabaseConfig)
		snapshotCfg.InputFile, _ = cmd.Flags().GetString("input-file")

		svc, err := snapshot.NewSnapshotService(snapshotCfg, l)
		if err != nil {
			return err
		}
		if err := svc.RestoreSnapshot(); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		return nil
	},
}

func init() {
	runDatabaseCmd.AddCommand(migrateDatabaseCmd)
	runDatabaseCmd.AddCommand(listMigrationsCmd)
	runDatabaseCmd.AddCommand(snapshotDatabaseCmd)
	runDatabaseCmd.AddCommand(restoreDatabaseCmd)

	snapshotDatabaseCmd.Flags().String("output-file", "", "Path to save the snapshot file to (required)")
	restoreDatabaseCmd.Flags().String("input-file", "", "Path to the snapshot file (required)")
}
