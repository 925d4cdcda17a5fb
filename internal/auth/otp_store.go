package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrOtpNotFound = errors.New("otp record not found")

// OtpStore holds pending verification codes keyed by email. Records live
// for otpTTL and are single-use.
type OtpStore interface {
	Put(ctx context.Context, email string, rec OtpRecord) error
	Get(ctx context.Context, email string) (OtpRecord, error)
	Update(ctx context.Context, email string, rec OtpRecord) error
	Delete(ctx context.Context, email string) error
}

type RedisOtpStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOtpStore(rdb *redis.Client) *RedisOtpStore {
	return &RedisOtpStore{rdb: rdb, ttl: otpTTL}
}

func otpKey(email string) string { return "otp:" + email }

func (s *RedisOtpStore) Put(ctx context.Context, email string, rec OtpRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, otpKey(email), data, s.ttl).Err()
}

func (s *RedisOtpStore) Get(ctx context.Context, email string) (OtpRecord, error) {
	data, err := s.rdb.Get(ctx, otpKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OtpRecord{}, ErrOtpNotFound
	}
	if err != nil {
		return OtpRecord{}, err
	}
	var rec OtpRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return OtpRecord{}, err
	}
	return rec, nil
}

// Update rewrites the record without resetting its TTL, so a failed attempt
// does not extend the code's lifetime.
func (s *RedisOtpStore) Update(ctx context.Context, email string, rec OtpRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, otpKey(email), data, redis.KeepTTL).Err()
}

func (s *RedisOtpStore) Delete(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, otpKey(email)).Err()
}

// RateLimiter caps code issuance per email over a fixed window. Check and
// Increment are separate on purpose: the counter is only consumed once the
// request has passed validation and a code was actually stored.
type RateLimiter interface {
	Check(ctx context.Context, email string) (retryAfter time.Duration, err error)
	Increment(ctx context.Context, email string) error
}

type RedisRateLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, max: rateLimitMax, window: rateLimitWindow}
}

func rateKey(email string) string { return "otp_rate:" + email }

// Check returns a positive retryAfter when the caller is limited.
func (l *RedisRateLimiter) Check(ctx context.Context, email string) (time.Duration, error) {
	count, err := l.rdb.Get(ctx, rateKey(email)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if count < l.max {
		return 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, rateKey(email)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		// Counter at limit but no expiry attached; treat the window as
		// just restarted rather than limiting forever.
		return 0, l.rdb.Del(ctx, rateKey(email)).Err()
	}
	return ttl, nil
}

func (l *RedisRateLimiter) Increment(ctx context.Context, email string) error {
	count, err := l.rdb.Incr(ctx, rateKey(email)).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return l.rdb.Expire(ctx, rateKey(email), l.window).Err()
	}
	return nil
}

var (
	_ OtpStore    = (*RedisOtpStore)(nil)
	_ RateLimiter = (*RedisRateLimiter)(nil)
)
