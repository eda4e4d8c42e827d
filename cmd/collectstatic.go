package main

import (
	"context"
	"fmt"
	"hello"
	"hello/internal/config"
	"hello/internal/staticfiles"
	"hello/pkg/logger"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func collectstaticCommand(cfg *config.Config) *cobra.Command {
	var opts staticfiles.Options

	cmd := &cobra.Command{
		Use:   "collectstatic",
		Short: "Copies the embedded static files into STATIC_ROOT",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			src, err := fs.Sub(hello.Static, "static")
			if err != nil {
				logger.Fatal(ctx, "could not open embedded static files", zap.Error(err))
			}

			res, err := staticfiles.Collect(src, cfg.Static.Root, opts)
			if err != nil {
				logger.Fatal(ctx, "could not collect static files", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d static files copied to '%s', %d unmodified.\n",
				res.Copied, cfg.Static.Root, res.Unmodified)
		},
	}
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "Remove STATIC_ROOT before copying")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Report what would be copied without copying")

	return cmd
}
