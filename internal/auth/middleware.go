package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the authenticated caller injected into the request context.
type Identity struct {
	UserID string
	Email  string
}

type ctxIdentityKey struct{}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxIdentityKey{}).(Identity)
	return ident, ok
}

// WithIdentity returns a context carrying ident.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, ident)
}

// bearerToken pulls the raw token out of an Authorization header, or ""
// when the header is absent or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth resolves the bearer token to an identity for every protected
// route. Every failure shape (missing, malformed, expired, unknown) yields
// the same 401 so callers learn nothing about session state.
func RequireAuth(sessions *SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}

			sess, err := sessions.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: sess.UserID, Email: sess.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
