package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

var (
	ErrExpired     = errors.New("code expired or never issued")
	ErrMaxAttempts = errors.New("too many failed attempts")
	ErrEmailSend   = errors.New("could not send code")
)

// RateLimitedError carries how long the caller has to wait before another
// code can be issued.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

// InvalidCodeError reports a wrong code along with how many attempts remain
// before the record is invalidated.
type InvalidCodeError struct {
	RemainingAttempts int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.RemainingAttempts)
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codeRe  = regexp.MustCompile(`^\d{6}$`)
)

func ValidEmail(email string) bool { return emailRe.MatchString(email) }
func ValidCode(code string) bool   { return codeRe.MatchString(code) }

// generateCode draws a uniform 6-digit code from the crypto RNG.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type OtpService struct {
	store    OtpStore
	limiter  RateLimiter
	repo     Repository
	sessions *SessionService
	sender   EmailSender

	generate func() (string, error)
}

func NewOtpService(store OtpStore, limiter RateLimiter, repo Repository, sessions *SessionService, sender EmailSender) *OtpService {
	return &OtpService{
		store:    store,
		limiter:  limiter,
		repo:     repo,
		sessions: sessions,
		sender:   sender,
		generate: generateCode,
	}
}

// RequestCode issues a code for email. Side effects are strictly ordered:
// rate check, code generation, record write, counter increment, email send.
// A failed send still consumes a rate-limit slot to bound abuse.
func (s *OtpService) RequestCode(ctx context.Context, email string) error {
	retryAfter, err := s.limiter.Check(ctx, email)
	if err != nil {
		return err
	}
	if retryAfter > 0 {
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, email, OtpRecord{Code: code, Attempts: 0}); err != nil {
		return err
	}
	if err := s.limiter.Increment(ctx, email); err != nil {
		return err
	}

	subject, body := otpEmail(code)
	if err := s.sender.Send(email, subject, body); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailSend, err)
	}
	return nil
}

type VerifyResult struct {
	Token     string
	User      User
	IsNewUser bool
}

// VerifyCode checks a submitted code. On match the record is deleted
// (single use), the user row is resolved or created, and a session token is
// minted.
func (s *OtpService) VerifyCode(ctx context.Context, email, code string) (VerifyResult, error) {
	rec, err := s.store.Get(ctx, email)
	if errors.Is(err, ErrOtpNotFound) {
		return VerifyResult{}, ErrExpired
	}
	if err != nil {
		return VerifyResult{}, err
	}

	if rec.Attempts >= otpMaxAttempts {
		if err := s.store.Delete(ctx, email); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{}, ErrMaxAttempts
	}

	if rec.Code != code {
		rec.Attempts++
		if rec.Attempts >= otpMaxAttempts {
			if err := s.store.Delete(ctx, email); err != nil {
				return VerifyResult{}, err
			}
			return VerifyResult{}, ErrMaxAttempts
		}
		if err := s.store.Update(ctx, email, rec); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{}, &InvalidCodeError{RemainingAttempts: otpMaxAttempts - rec.Attempts}
	}

	if err := s.store.Delete(ctx, email); err != nil {
		return VerifyResult{}, err
	}

	user, isNew, err := s.resolveUser(ctx, email)
	if err != nil {
		return VerifyResult{}, err
	}

	token, err := s.sessions.Create(ctx, user.ID, user.Email)
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{Token: token, User: user, IsNewUser: isNew}, nil
}

// resolveUser finds the user row for email, creating it on first login.
// The OTP flow itself registers; there is no separate sign-up step.
func (s *OtpService) resolveUser(ctx context.Context, email string) (User, bool, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, err
	}

	user, err = s.repo.CreateUser(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		// Lost an insert race with another device; the row exists now.
		user, err = s.repo.FindUserByEmail(ctx, email)
		return user, false, err
	}
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}
