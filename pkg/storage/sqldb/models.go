package sqldb

import (
	"database/sql"
	"hello/pkg/domain"
	"time"

	"github.com/google/uuid"
)

type userRow struct {
	ID          uuid.UUID    `db:"id"`
	Username    string       `db:"username"`
	Password    string       `db:"password"`
	IsActive    bool         `db:"is_active"`
	IsStaff     bool         `db:"is_staff"`
	IsSuperuser bool         `db:"is_superuser"`
	LastLogin   sql.NullTime `db:"last_login"`
	DateJoined  time.Time    `db:"date_joined"`
}

func (r *userRow) ToDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(r.ID),
		Username:     r.Username,
		PasswordHash: r.Password,
		IsActive:     r.IsActive,
		IsStaff:      r.IsStaff,
		IsSuperuser:  r.IsSuperuser,
		LastLogin:    utc(r.LastLogin.Time),
		DateJoined:   r.DateJoined.UTC(),
	}
}

func (r *userRow) FromDomain(user domain.User) {
	*r = userRow{
		ID:          uuid.UUID(user.ID),
		Username:    user.Username,
		Password:    user.PasswordHash,
		IsActive:    user.IsActive,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
		LastLogin: sql.NullTime{
			Time:  dbTime(user.LastLogin),
			Valid: !user.LastLogin.IsZero(),
		},
		DateJoined: dbTime(user.DateJoined),
	}
}

type sessionRow struct {
	SessionKey string    `db:"session_key"`
	UserID     uuid.UUID `db:"user_id"`
	ExpireDate time.Time `db:"expire_date"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *sessionRow) ToDomain() *domain.Session {
	return &domain.Session{
		Key:        domain.SessionKey(r.SessionKey),
		UserID:     domain.UserID(r.UserID),
		ExpireDate: r.ExpireDate.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func (r *sessionRow) FromDomain(session domain.Session) {
	*r = sessionRow{
		SessionKey: string(session.Key),
		UserID:     uuid.UUID(session.UserID),
		ExpireDate: dbTime(session.ExpireDate),
		CreatedAt:  dbTime(session.CreatedAt),
	}
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}

	return t.UTC()
}
