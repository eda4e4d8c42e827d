// Package main provides the hello command line. One binary plays every tier
// of the deployment: the reverse proxy, the application server, the
// migration step, static collection and the admin housekeeping commands.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"hello/internal/config"
	"hello/pkg/logger"
	"hello/pkg/storage"
	"hello/pkg/storage/postgres"
	"hello/pkg/storage/redis"
	"hello/pkg/storage/sqlite"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// database is the opened storage plus the engine specific handles some
// commands need.
type database struct {
	storage.Storage

	// SQL backs the migration ledger.
	SQL *sql.DB
	// Pool is set on postgres only.
	Pool *pgxpool.Pool
}

// openDatabase connects to the configured engine with at most maxConns
// connections. Any failure is fatal.
func openDatabase(ctx context.Context, cfg *config.Config, maxConns int) (*database, func()) {
	var db *database

	switch cfg.Database.Engine {
	case config.EnginePostgres:
		pgsql, err := postgres.New(ctx, postgres.Options{
			Username:           cfg.Database.User,
			Password:           cfg.Database.Password,
			Host:               cfg.Database.Host,
			Port:               cfg.Database.Port,
			Database:           cfg.Database.Name,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime:    cfg.Database.ConnMaxIdleTime,
			MaxOpenConnections: maxConns,
			MaxIdleConnections: maxConns,
			SslMode:            cfg.Database.SslMode,
		})
		if err != nil {
			logger.Fatal(ctx, "could not create postgres storage", zap.Error(err))
		}
		db = &database{Storage: pgsql, SQL: pgsql.DB.(*sql.DB), Pool: pgsql.Pool}
	case config.EngineSQLite:
		lite, err := sqlite.New(ctx, sqlite.Options{
			Path:               cfg.Database.Name,
			MaxOpenConnections: maxConns,
		})
		if err != nil {
			logger.Fatal(ctx, "could not create sqlite storage", zap.Error(err))
		}
		db = &database{Storage: lite, SQL: lite.DB.(*sql.DB)}
	default:
		logger.Fatal(ctx, "unknown database engine", zap.String("engine", cfg.Database.Engine))
	}

	return db, func() {
		logger.Info(ctx, "closing database client...")
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "could not close database connection", zap.Error(err))
		}
	}
}

// openSessions returns the configured session storage. With the cache engine
// it also returns the redis client so readiness can ping it.
func openSessions(ctx context.Context, cfg *config.Config, db *database) (storage.SessionStorage, *redis.Sessions, func()) {
	if cfg.Session.Engine != config.SessionEngineCache {
		return db, nil, func() {}
	}

	cache, err := redis.New(ctx, redis.Options{URL: cfg.Session.CacheURL})
	if err != nil {
		logger.Fatal(ctx, "could not create redis session storage", zap.Error(err))
	}

	return cache, cache, func() {
		logger.Info(ctx, "closing redis client...")
		if err := cache.Close(); err != nil {
			logger.Warn(ctx, "could not close redis connection", zap.Error(err))
		}
	}
}

// loadConfig fills cfg from the --config file, --env-file files and the
// environment, then sets up logging.
func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	configPath, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")

	loaded, err := config.Load(configPath, envFiles...)
	if err != nil {
		return err //nolint: wrapcheck
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	*cfg = *loaded

	logger.Setup(cfg.Environment, logger.WithLevel(cfg.LogLevel))
	logger.Debug(context.Background(), "configuration loaded", zap.Any("config", cfg.Redacted()))

	return nil
}

// main sets up the root Cobra command and registers subcommands. Configuration
// is loaded once, before any subcommand runs.
func main() {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:           "hello",
		Short:         "Hello World web application and its deployment tiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd, cfg)
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "Config File Path")
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Env files loaded before reading the environment")

	ctx := context.Background()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			logger.Sync()

			panic(p)
		}
	}()

	rootCmd.AddCommand(
		serveCommand(cfg),
		runserverCommand(cfg),
		proxyCommand(cfg),
		migrateCommand(cfg),
		collectstaticCommand(cfg),
		createsuperuserCommand(cfg),
		clearsessionsCommand(cfg),
	)

	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		log.Println(err)
		os.Exit(1) //nolint: gocritic
	}
}
