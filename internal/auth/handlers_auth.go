package auth

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strings"
)

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "invalid JSON body")
		return
	}

	email := normalizeEmail(body.Email)
	if !ValidEmail(email) {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "invalid email address")
		return
	}

	err := s.otp.RequestCode(r.Context(), email)
	var rateErr *RateLimitedError
	switch {
	case errors.As(err, &rateErr):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":           false,
			"error":             "RATE_LIMITED",
			"retryAfterSeconds": int(math.Ceil(rateErr.RetryAfter.Seconds())),
		})
		return
	case errors.Is(err, ErrEmailSend):
		// The one path where delivery failure is surfaced: without the
		// code the user cannot proceed, and "send failed" leaks nothing
		// about account existence.
		log.Printf("auth: request code for %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not send code")
		return
	case err != nil:
		log.Printf("auth: request code for %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	// Same shape and wording whether or not the email has an account.
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification code sent.",
	})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	email := normalizeEmail(body.Email)
	if !ValidEmail(email) || !ValidCode(body.Code) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and 6-digit code are required")
		return
	}

	result, err := s.otp.VerifyCode(r.Context(), email, body.Code)
	var invalidErr *InvalidCodeError
	switch {
	case errors.Is(err, ErrExpired):
		writeError(w, http.StatusBadRequest, "EXPIRED", "code expired, request a new one")
		return
	case errors.Is(err, ErrMaxAttempts):
		writeError(w, http.StatusBadRequest, "MAX_ATTEMPTS", "too many failed attempts, request a new code")
		return
	case errors.As(err, &invalidErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":           false,
			"error":             "INVALID_CODE",
			"remainingAttempts": invalidErr.RemainingAttempts,
		})
		return
	case err != nil:
		log.Printf("auth: verify code for %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     result.Token,
		"user":      result.User,
		"isNewUser": result.IsNewUser,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]string{
			"id":    ident.UserID,
			"email": ident.Email,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := s.sessions.Delete(r.Context(), token); err != nil {
		log.Printf("auth: logout: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
