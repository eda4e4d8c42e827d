package domain

import (
	"crypto/rand"
	"time"
)

// SessionKey identifies a login session. It is the value the session cookie
// refers to.
type SessionKey string

// Keys are lowercase alphanumeric and fit the 40 character column.
const sessionKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SessionKeyLength is the number of characters in a generated SessionKey.
const SessionKeyLength = 32

// NewSessionKey returns a random session key. Every alphabet character is
// equally likely.
func NewSessionKey() SessionKey {
	// bytes at or above limit would favour the first characters
	limit := byte(256 - 256%len(sessionKeyAlphabet))

	key := make([]byte, 0, SessionKeyLength)
	buf := make([]byte, SessionKeyLength)
	for len(key) < SessionKeyLength {
		_, _ = rand.Read(buf)
		for _, c := range buf {
			if c >= limit {
				continue
			}
			key = append(key, sessionKeyAlphabet[int(c)%len(sessionKeyAlphabet)])
			if len(key) == SessionKeyLength {
				break
			}
		}
	}

	return SessionKey(key)
}

// Session binds a session key to a user until ExpireDate.
type Session struct {
	Key        SessionKey
	UserID     UserID
	ExpireDate time.Time
	CreatedAt  time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpireDate)
}
