package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionInvalid = errors.New("session invalid")

// SessionService issues and validates opaque bearer tokens. Tokens are
// capability-bearing secrets: no signature, validity rests entirely on the
// store lookup and 256 bits of randomness.
type SessionService struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewSessionService(rdb *redis.Client) *SessionService {
	return &SessionService{
		rdb: rdb,
		ttl: sessionTTL,
		now: time.Now,
	}
}

func sessionKey(token string) string { return "session:" + token }

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *SessionService) Create(ctx context.Context, userID, email string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := Session{
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Verify resolves a token and applies sliding expiry. The renewal write is
// throttled: a session with 29+ days remaining is returned as-is, so an
// active session costs at most one rewrite per day.
func (s *SessionService) Verify(ctx context.Context, token string) (Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionInvalid
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, ErrSessionInvalid
	}

	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		_ = s.rdb.Del(ctx, sessionKey(token)).Err()
		return Session{}, ErrSessionInvalid
	}

	if sess.ExpiresAt.Sub(now) < s.ttl-sessionRenewThrottle {
		sess.ExpiresAt = now.Add(s.ttl)
		renewed, err := json.Marshal(sess)
		if err == nil {
			// Renewal is best-effort; the session stays valid either way.
			_ = s.rdb.Set(ctx, sessionKey(token), renewed, s.ttl).Err()
		}
	}

	return sess, nil
}

func (s *SessionService) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKey(token)).Err()
}
