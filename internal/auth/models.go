package auth

import (
	"errors"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// OtpRecord is the short-lived verification state for one email. Attempts
// counts failed verifications; the record is deleted on success, on the
// third failure, or by TTL.
type OtpRecord struct {
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
}

// Session is the record behind one opaque bearer token. ExpiresAt slides
// forward on use, never past 30 days from the most recent renewal.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 3

	rateLimitMax    = 3
	rateLimitWindow = 15 * time.Minute

	sessionTTL = 30 * 24 * time.Hour
	// Sliding renewal is throttled: a session refreshed within the last
	// day is not rewritten again.
	sessionRenewThrottle = 24 * time.Hour
)

var ErrUserNotFound = errors.New("user not found")
