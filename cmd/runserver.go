package main

import (
	"fmt"
	"hello/internal/config"
	"net"
	"strconv"

	"github.com/spf13/cobra"
)

const defaultRunserverAddr = "127.0.0.1:8000"

// runserverAddr accepts "port", ":port" or "host:port".
func runserverAddr(arg string) (string, error) {
	if _, err := strconv.Atoi(arg); err == nil {
		return "127.0.0.1:" + arg, nil
	}
	if _, _, err := net.SplitHostPort(arg); err != nil {
		return "", err //nolint: wrapcheck
	}

	return arg, nil
}

func runserverCommand(cfg *config.Config) *cobra.Command {
	var insecure bool

	cmd := &cobra.Command{
		Use:   "runserver [addrport]",
		Short: "Starts a single worker development server",
		Long: "Starts a development server with one worker. Static files are served from the\n" +
			"binary when DEBUG is on or --insecure is given. Not meant for production.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := defaultRunserverAddr
			if len(args) == 1 {
				var err error
				if addr, err = runserverAddr(args[0]); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Starting development server at http://%s/\nQuit the server with CONTROL-C.\n", addr)

			return runServer(cfg, serverMode{
				addr:        addr,
				workers:     1,
				backlog:     cfg.Workers.Backlog,
				serveStatic: cfg.Debug || insecure,
			})
		},
	}
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Serve static files even when DEBUG is off")

	return cmd
}
