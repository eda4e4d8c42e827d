// Package housekeeping removes expired sessions, either once from the command
// line or periodically through a river client on postgres.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"hello/pkg/logger"
	"hello/pkg/storage"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// ClearSessions deletes sessions that expired at or before now.
func ClearSessions(ctx context.Context, sessions storage.SessionStorage, now time.Time) (int64, error) {
	n, err := sessions.ClearExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("could not clear expired sessions: %w", err)
	}
	logger.Info(ctx, "cleared expired sessions", zap.Int64("deleted", n))

	return n, nil
}

// ClearSessionsArgs is the river job that clears expired sessions.
type ClearSessionsArgs struct{}

// Kind implements river.JobArgs.
func (ClearSessionsArgs) Kind() string { return "clear_sessions" }

// InsertOpts keeps at most one pending run per hour across replicas.
func (ClearSessionsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 3,
		UniqueOpts:  river.UniqueOpts{ByPeriod: time.Hour},
	}
}

// ClearSessionsWorker runs ClearSessionsArgs jobs.
type ClearSessionsWorker struct {
	river.WorkerDefaults[ClearSessionsArgs]

	sessions storage.SessionStorage
	now      func() time.Time
}

// NewClearSessionsWorker returns a worker deleting from sessions.
func NewClearSessionsWorker(sessions storage.SessionStorage) *ClearSessionsWorker {
	return &ClearSessionsWorker{sessions: sessions, now: time.Now}
}

// Work deletes the sessions that expired before the job started.
func (w *ClearSessionsWorker) Work(ctx context.Context, job *river.Job[ClearSessionsArgs]) error {
	ctx = logger.WithFields(ctx, zap.Int64("jobID", job.ID))

	_, err := ClearSessions(ctx, w.sessions, w.now())

	return err
}

// Timeout bounds a single run.
func (w *ClearSessionsWorker) Timeout(*river.Job[ClearSessionsArgs]) time.Duration {
	return time.Minute
}

// Start runs a river client on pool that clears sessions every interval,
// starting right away.
func Start(ctx context.Context, pool *pgxpool.Pool, sessions storage.SessionStorage, interval time.Duration) (*river.Client[pgx.Tx], error) {
	if interval <= 0 {
		return nil, errors.New("clear sessions interval must be positive")
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewClearSessionsWorker(sessions))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(interval),
				func() (river.JobArgs, *river.InsertOpts) { return ClearSessionsArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
		Logger: slog.New(zapslog.NewHandler(logger.Get(ctx).Core())),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create river queue client: %w", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("could not start river queue client: %w", err)
	}

	return riverClient, nil
}
