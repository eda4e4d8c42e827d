package auth_test

import (
	"context"
	"errors"
	"hello/internal/auth"
	"hello/pkg/domain"
	"hello/pkg/logger"
	"hello/pkg/serrors"
	mockstorage "hello/pkg/storage/mock"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	logger.Setup(logger.DevelopmentEnvironment)
	m.Run()
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) //nolint: gochecknoglobals

type fixture struct {
	users    *mockstorage.MockUserStorage
	sessions *mockstorage.MockSessionStorage
	svc      *auth.Service
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		users:    mockstorage.NewMockUserStorage(ctrl),
		sessions: mockstorage.NewMockSessionStorage(ctrl),
	}
	clock := now
	f.clock = &clock

	svc, err := auth.New(f.users, f.sessions, auth.Options{
		SecretKey: "test-secret",
		CookieAge: time.Hour,
		Now:       func() time.Time { return *f.clock },
	})
	require.NoError(t, err)
	f.svc = svc

	return f
}

func newUser(t *testing.T, password string) *domain.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	return &domain.User{
		ID:           domain.NewUserID(),
		Username:     "admin",
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      true,
	}
}

func TestPassword(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, auth.CheckPassword(hash, "s3cret"))
	require.False(t, auth.CheckPassword(hash, "wrong"))
	require.False(t, auth.CheckPassword("not-a-hash", "s3cret"))

	_, err = auth.HashPassword("")
	require.Error(t, err)
}

func TestNew_Validates(t *testing.T) {
	_, err := auth.New(nil, nil, auth.Options{CookieAge: time.Hour})
	require.Error(t, err)

	_, err = auth.New(nil, nil, auth.Options{SecretKey: "x"})
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	user := newUser(t, "s3cret")

	t.Run("valid credentials", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByUsername(gomock.Any(), "admin").Return(user, nil)

		got, err := f.svc.Authenticate(ctx, "admin", "s3cret")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByUsername(gomock.Any(), "admin").Return(user, nil)

		_, err := f.svc.Authenticate(ctx, "admin", "nope")
		require.ErrorIs(t, err, serrors.ErrUnauthorized)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByUsername(gomock.Any(), "ghost").Return(nil, nil)

		_, err := f.svc.Authenticate(ctx, "ghost", "s3cret")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newFixture(t)
		inactive := *user
		inactive.IsActive = false
		f.users.EXPECT().UserByUsername(gomock.Any(), "admin").Return(&inactive, nil)

		_, err := f.svc.Authenticate(ctx, "admin", "s3cret")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().UserByUsername(gomock.Any(), "admin").Return(nil, errors.New("boom"))

		_, err := f.svc.Authenticate(ctx, "admin", "s3cret")
		require.Error(t, err)
		require.NotErrorIs(t, err, serrors.ErrUnauthorized)
	})
}

// login signs user in and returns the stored session and the cookie set.
func login(t *testing.T, f *fixture, user *domain.User) (domain.Session, *http.Cookie) {
	t.Helper()

	var stored domain.Session
	f.sessions.EXPECT().StoreSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s domain.Session) error {
			stored = s

			return nil
		})
	f.users.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, now).Return(nil)

	rec := httptest.NewRecorder()
	require.NoError(t, f.svc.Login(context.Background(), rec, user))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	return stored, cookies[0]
}

func TestLogin_SetsSignedCookie(t *testing.T) {
	f := newFixture(t)
	user := newUser(t, "s3cret")

	stored, cookie := login(t, f, user)

	require.Equal(t, auth.CookieName, cookie.Name)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, user.ID, stored.UserID)
	require.Equal(t, now.Add(time.Hour), stored.ExpireDate)
	require.Len(t, string(stored.Key), domain.SessionKeyLength)

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.Equal(t, string(stored.Key), claims.ID)
	require.Equal(t, user.ID.String(), claims.Subject)
}

func TestUserFromRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		f := newFixture(t)
		user := newUser(t, "s3cret")
		stored, cookie := login(t, f, user)

		f.sessions.EXPECT().SessionByKey(gomock.Any(), stored.Key).Return(&stored, nil)
		f.users.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

		req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
		req.AddCookie(cookie)

		got, err := f.svc.UserFromRequest(ctx, req)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("no cookie", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.UserFromRequest(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
		require.ErrorIs(t, err, auth.ErrNoSession)
	})

	t.Run("tampered token", func(t *testing.T) {
		f := newFixture(t)
		_, cookie := login(t, f, newUser(t, "s3cret"))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie.Value + "x"})

		_, err := f.svc.UserFromRequest(ctx, req)
		require.ErrorIs(t, err, serrors.ErrUnauthorized)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		f := newFixture(t)
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})

		_, err = f.svc.UserFromRequest(ctx, req)
		require.ErrorIs(t, err, serrors.ErrUnauthorized)
	})

	t.Run("revoked session", func(t *testing.T) {
		f := newFixture(t)
		stored, cookie := login(t, f, newUser(t, "s3cret"))
		f.sessions.EXPECT().SessionByKey(gomock.Any(), stored.Key).Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)

		_, err := f.svc.UserFromRequest(ctx, req)
		require.ErrorIs(t, err, auth.ErrNoSession)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		_, cookie := login(t, f, newUser(t, "s3cret"))
		*f.clock = now.Add(2 * time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)

		_, err := f.svc.UserFromRequest(ctx, req)
		require.ErrorIs(t, err, serrors.ErrUnauthorized)
	})

	t.Run("deactivated user", func(t *testing.T) {
		f := newFixture(t)
		user := newUser(t, "s3cret")
		stored, cookie := login(t, f, user)
		inactive := *user
		inactive.IsActive = false

		f.sessions.EXPECT().SessionByKey(gomock.Any(), stored.Key).Return(&stored, nil)
		f.users.EXPECT().UserByID(gomock.Any(), user.ID).Return(&inactive, nil)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)

		_, err := f.svc.UserFromRequest(ctx, req)
		require.ErrorIs(t, err, auth.ErrNoSession)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	stored, cookie := login(t, f, newUser(t, "s3cret"))

	f.sessions.EXPECT().SessionByKey(gomock.Any(), stored.Key).Return(&stored, nil)
	f.sessions.EXPECT().DeleteSession(gomock.Any(), stored.Key).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/logout/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()

	require.NoError(t, f.svc.Logout(context.Background(), rec, req))

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	require.Equal(t, auth.CookieName, cleared[0].Name)
	require.Empty(t, cleared[0].Value)
	require.Negative(t, cleared[0].MaxAge)
}

func TestLogout_Anonymous(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	require.NoError(t, f.svc.Logout(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/", nil)))
}

func TestWithUser(t *testing.T) {
	f := newFixture(t)
	user := newUser(t, "s3cret")
	stored, cookie := login(t, f, user)

	var seen *domain.User
	h := f.svc.WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Nil(t, seen)

	f.sessions.EXPECT().SessionByKey(gomock.Any(), stored.Key).Return(&stored, nil)
	f.users.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	require.Equal(t, user.Username, seen.Username)
}
