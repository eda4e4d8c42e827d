package sqldb

import (
	"context"
	"fmt"
	"hello/pkg/domain"
	"time"

	"github.com/doug-martin/goqu/v9"
)

const sessionsTable = "auth_session"

func (s *Store) StoreSession(ctx context.Context, session domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	var row sessionRow
	row.FromDomain(session)

	if _, err := s.Builder.Insert(sessionsTable).
		Rows(row).
		Prepared(true).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("could not store session: %w", err)
	}

	return nil
}

// SessionByKey returns the session stored under key, or nil.
func (s *Store) SessionByKey(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var row sessionRow
	found, err := s.Builder.From(sessionsTable).
		Where(goqu.C("session_key").Eq(string(key))).
		Limit(1).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}
	if !found {
		return nil, nil //nolint: nilnil
	}

	return row.ToDomain(), nil
}

func (s *Store) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	if _, err := s.Builder.Delete(sessionsTable).
		Where(goqu.C("session_key").Eq(string(key))).
		Prepared(true).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	return nil
}

// ClearExpiredSessions deletes sessions whose expire date is at or before now.
func (s *Store) ClearExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Builder.Delete(sessionsTable).
		Where(goqu.C("expire_date").Lte(dbTime(now))).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not clear expired sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not count cleared sessions: %w", err)
	}

	return n, nil
}
