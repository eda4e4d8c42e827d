package sqldb

import (
	"context"
	"fmt"
	"hello/pkg/domain"
	"hello/pkg/storage"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

const usersTable = "auth_user"

// CreateUser inserts user, assigning an ID and join date when they are unset.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == (domain.UserID{}) {
		user.ID = domain.NewUserID()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}

	var row userRow
	row.FromDomain(user)

	if _, err := s.Builder.Insert(usersTable).
		Rows(row).
		Prepared(true).
		Executor().ExecContext(ctx); err != nil {
		if s.uniqueViolation(err) {
			return nil, fmt.Errorf("could not store user %q: %w", user.Username, storage.ErrUsernameTaken)
		}

		return nil, fmt.Errorf("could not store user: %w", err)
	}

	return s.UserByID(ctx, user.ID)
}

func (s *Store) userWhere(ctx context.Context, where goqu.Expression) (*domain.User, error) {
	var row userRow
	found, err := s.Builder.From(usersTable).
		Where(where).
		Limit(1).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("could not get user: %w", err)
	}
	if !found {
		return nil, nil //nolint: nilnil
	}

	return row.ToDomain(), nil
}

// UserByUsername returns the user with the given username, or nil.
func (s *Store) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.userWhere(ctx, goqu.C("username").Eq(username))
}

// UserByID returns the user with the given ID, or nil.
func (s *Store) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.userWhere(ctx, goqu.C("id").Eq(uuid.UUID(id)))
}

func (s *Store) UpdateLastLogin(ctx context.Context, id domain.UserID, at time.Time) error {
	if _, err := s.Builder.Update(usersTable).
		Set(goqu.Record{"last_login": dbTime(at)}).
		Where(goqu.C("id").Eq(uuid.UUID(id))).
		Prepared(true).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("could not update last login: %w", err)
	}

	return nil
}
