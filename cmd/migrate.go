package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	pgstore "github.com/JakeFAU/leadscout/internal/storage/postgres"
	"github.com/JakeFAU/leadscout/internal/storage/sqlite"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations for the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			db := cfg.Database
			switch db.Backend {
			case "postgres":
				pool, err := pgstore.Connect(cmd.Context(), pgstore.Config{
					DSN:      db.DSN,
					MaxConns: db.MaxConns,
					MinConns: db.MinConns,
				})
				if err != nil {
					return err
				}
				defer pool.Close()
				applied, err := pgstore.Migrate(cmd.Context(), pool)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(out, "postgres schema is up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintf(out, "applied %s\n", v)
				}
			case "sqlite":
				repo, err := sqlite.Open(cmd.Context(), db.SQLitePath)
				if err != nil {
					return err
				}
				if err := repo.Close(); err != nil {
					return fmt.Errorf("close sqlite: %w", err)
				}
				fmt.Fprintf(out, "sqlite schema at %s is up to date\n", db.SQLitePath)
			default:
				fmt.Fprintln(out, "memory backend has no schema to migrate")
			}
			return nil
		},
	}
}
