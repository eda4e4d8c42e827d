// Package redis stores login sessions in Redis for SESSION_ENGINE=cache.
// Sessions expire through Redis key TTLs; users stay in the SQL database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"hello/pkg/domain"
	"hello/pkg/storage"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-redis/redis/v8"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "hello:session:"

// Options configures the Redis session store.
type Options struct {
	// URL is a redis:// or rediss:// URL, e.g. redis://cache:6379/0.
	URL string
	// Prefix is prepended to every session key. Defaults to DefaultPrefix.
	Prefix string
}

// Sessions implements storage.SessionStorage on Redis.
type Sessions struct {
	client *redis.Client
	prefix string
}

var _ storage.SessionStorage = (*Sessions)(nil)

// New connects to Redis and verifies it answers.
func New(ctx context.Context, options Options) (*Sessions, error) {
	opts, err := redis.ParseURL(options.URL)
	if err != nil {
		return nil, fmt.Errorf("could not parse cache url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("could not reach redis at %s: %w", opts.Addr, err)
	}

	return NewWithClient(client, options.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Sessions {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Sessions{client: client, prefix: prefix}
}

func (s *Sessions) key(k domain.SessionKey) string {
	return s.prefix + string(k)
}

// Ping checks Redis is reachable.
func (s *Sessions) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("could not ping redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (s *Sessions) Close() error {
	return s.client.Close() //nolint: wrapcheck
}

// StoreSession writes session with a TTL ending at its expire date. A session
// that is already expired is not written.
func (s *Sessions) StoreSession(ctx context.Context, session domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	ttl := time.Until(session.ExpireDate)
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.key(session.Key), encodeSession(session), ttl).Err(); err != nil {
		return fmt.Errorf("could not store session: %w", err)
	}

	return nil
}

// SessionByKey returns the session stored under key, or nil.
func (s *Sessions) SessionByKey(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint: nilnil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get session: %w", err)
	}

	session, err := decodeSession(raw)
	if err != nil {
		return nil, fmt.Errorf("could not decode session %s: %w", key, err)
	}
	session.Key = key

	return session, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	return nil
}

// ClearExpiredSessions is a no-op: Redis evicts expired keys itself.
func (s *Sessions) ClearExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func encodeSession(session domain.Session) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("user_id")
	e.Str(session.UserID.String())
	e.FieldStart("expire_date")
	e.Str(session.ExpireDate.UTC().Format(time.RFC3339))
	e.FieldStart("created_at")
	e.Str(session.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()

	return e.Bytes()
}

func decodeSession(raw []byte) (*domain.Session, error) {
	var session domain.Session
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "user_id":
			v, err := d.Str()
			if err != nil {
				return err //nolint: wrapcheck
			}
			session.UserID, err = domain.ParseUserID(v)

			return err
		case "expire_date":
			return decodeTime(d, &session.ExpireDate)
		case "created_at":
			return decodeTime(d, &session.CreatedAt)
		default:
			return d.Skip() //nolint: wrapcheck
		}
	})
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	return &session, nil
}

func decodeTime(d *jx.Decoder, dst *time.Time) error {
	v, err := d.Str()
	if err != nil {
		return err //nolint: wrapcheck
	}

	*dst, err = time.Parse(time.RFC3339, v)

	return err //nolint: wrapcheck
}
