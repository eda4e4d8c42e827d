// Package auth authenticates admin users and keeps them signed in with a
// session cookie. The cookie carries an HS256 JWT signed with the secret key;
// its ID is the key of a session row, so signing out or clearing sessions
// revokes the cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"hello/pkg/domain"
	"hello/pkg/logger"
	"hello/pkg/serrors"
	"hello/pkg/storage"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// CookieName is the session cookie name.
const CookieName = "sessionid"

var (
	// ErrInvalidCredentials is returned for a wrong username or password.
	ErrInvalidCredentials = serrors.With(serrors.ErrUnauthorized, "invalid username or password")
	// ErrNoSession is returned when the request carries no valid session.
	ErrNoSession = serrors.With(serrors.ErrUnauthorized, "no valid session")
)

// Options configures the session cookie.
type Options struct {
	// SecretKey signs the cookie.
	SecretKey string
	// CookieAge is how long a login lasts.
	CookieAge time.Duration
	// CookieSecure marks the cookie Secure.
	CookieSecure bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service signs users in and out.
type Service struct {
	users    storage.UserStorage
	sessions storage.SessionStorage
	opts     Options
	now      func() time.Time
}

// New returns a Service storing users in users and sessions in sessions.
func New(users storage.UserStorage, sessions storage.SessionStorage, opts Options) (*Service, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if opts.CookieAge <= 0 {
		return nil, errors.New("cookie age must be positive")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{users: users, sessions: sessions, opts: opts, now: now}, nil
}

// Authenticate checks username and password. Inactive users cannot sign in.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("could not look up user: %w", err)
	}
	if user == nil {
		_ = CheckPassword(string(dummyHash), password)

		return nil, ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Login starts a session for user and sets the session cookie on w.
func (s *Service) Login(ctx context.Context, w http.ResponseWriter, user *domain.User) error {
	now := s.now()
	session := domain.Session{
		Key:        domain.NewSessionKey(),
		UserID:     user.ID,
		ExpireDate: now.Add(s.opts.CookieAge),
		CreatedAt:  now,
	}
	if err := s.sessions.StoreSession(ctx, session); err != nil {
		return err //nolint: wrapcheck
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn(ctx, "could not record last login", zap.Error(err))
	}

	token, err := s.sign(session)
	if err != nil {
		return err
	}

	http.SetCookie(w, s.cookie(token, session.ExpireDate))
	logger.Info(ctx, "user signed in", zap.String("username", user.Username))

	return nil
}

func (s *Service) sign(session domain.Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{jwt.RegisteredClaims{
		ID:        string(session.Key),
		Subject:   session.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpireDate),
	}})

	signed, err := token.SignedString([]byte(s.opts.SecretKey))
	if err != nil {
		return "", fmt.Errorf("could not sign session token: %w", err)
	}

	return signed, nil
}

func (s *Service) cookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	} else {
		c.Expires = expires
	}

	return c
}

// parse verifies the cookie token and returns its claims.
func (s *Service) parse(token string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(s.opts.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrUnauthorized, err, "invalid session token")
	}

	return &c, nil
}

// SessionFromRequest returns the live session referenced by r's cookie.
func (s *Service) SessionFromRequest(ctx context.Context, r *http.Request) (*domain.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	c, err := s.parse(cookie.Value)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.SessionByKey(ctx, domain.SessionKey(c.ID))
	if err != nil {
		return nil, fmt.Errorf("could not load session: %w", err)
	}
	if session == nil || session.Expired(s.now()) || session.UserID.String() != c.Subject {
		return nil, ErrNoSession
	}

	return session, nil
}

// UserFromRequest returns the active user signed in on r.
func (s *Service) UserFromRequest(ctx context.Context, r *http.Request) (*domain.User, error) {
	session, err := s.SessionFromRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not load session user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrNoSession
	}

	return user, nil
}

// Logout deletes the session referenced by r, if any, and clears the cookie.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, s.cookie("", time.Time{}))

	session, err := s.SessionFromRequest(ctx, r)
	if errors.Is(err, serrors.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.sessions.DeleteSession(ctx, session.Key); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	return nil
}

type userKey struct{}

// WithUser attaches the signed in user, if any, to the request context.
// Storage failures are logged and the request continues anonymously.
func (s *Service) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := s.UserFromRequest(ctx, r)
		switch {
		case err == nil:
			ctx = context.WithValue(ctx, userKey{}, user)
			ctx = logger.WithFields(ctx, zap.String("user", user.Username))
		case !errors.Is(err, serrors.ErrUnauthorized):
			logger.Error(ctx, "could not resolve session user", zap.Error(err))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey{}).(*domain.User)

	return user
}
