package main

import (
	"context"
	"fmt"
	"hello/internal/config"
	"hello/internal/ledger"
	"hello/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCommand constructs the 'migrate' subcommand that applies the
// migration ledger, or lists it with --list.
func migrateCommand(cfg *config.Config) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates database to the latest version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			out := cmd.OutOrStdout()

			db, closeDB := openDatabase(ctx, cfg, 1)
			defer closeDB()

			l, err := ledger.New(db.SQL, cfg.Database.Engine)
			if err != nil {
				logger.Fatal(ctx, "could not open migration ledger", zap.Error(err))
			}

			if list {
				entries, err := l.Status(ctx)
				if err != nil {
					logger.Fatal(ctx, "could not read migration ledger", zap.Error(err))
				}
				for _, e := range entries {
					fmt.Fprintln(out, e.String())
				}

				return
			}

			fmt.Fprintln(out, "Running migrations:")
			applied, err := l.Apply(ctx)
			for _, e := range applied {
				fmt.Fprintf(out, "  Applying %s... OK\n", e.Name)
			}
			if err != nil {
				logger.Fatal(ctx, "could not migrate database", zap.Error(err))
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "  No migrations to apply.")
			}
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List migrations and whether they are applied")

	return cmd
}
