package main

import (
	"context"
	"fmt"
	"hello/internal/config"
	"hello/internal/housekeeping"
	"hello/pkg/logger"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func clearsessionsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clearsessions",
		Short: "Deletes expired sessions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			db, closeDB := openDatabase(ctx, cfg, 1)
			defer closeDB()
			sessions, _, closeSessions := openSessions(ctx, cfg, db)
			defer closeSessions()

			n, err := housekeeping.ClearSessions(ctx, sessions, time.Now())
			if err != nil {
				logger.Fatal(ctx, "could not clear sessions", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d expired sessions deleted.\n", n)
		},
	}

	return cmd
}
