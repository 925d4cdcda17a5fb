package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *MockRepository, *MockEmailSender) {
	t.Helper()
	_, rdb := newTestRedis(t)

	repo := new(MockRepository)
	sender := new(MockEmailSender)
	sessions := NewSessionService(rdb)
	otp := NewOtpService(
		NewRedisOtpStore(rdb),
		NewRedisRateLimiter(rdb),
		repo,
		sessions,
		sender,
	)
	otp.generate = func() (string, error) { return "031942", nil }
	return NewServer(otp, sessions), repo, sender
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleRequestCode(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		setupMock      func(*MockEmailSender)
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Success",
			body:           map[string]string{"email": "a@x.com"},
			setupMock:      func(e *MockEmailSender) { e.On("Send", "a@x.com", mock.Anything, mock.Anything).Return(nil) },
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid Email",
			body:           map[string]string{"email": "not-an-email"},
			setupMock:      func(e *MockEmailSender) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_EMAIL",
		},
		{
			name:           "Missing Email",
			body:           map[string]string{},
			setupMock:      func(e *MockEmailSender) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_EMAIL",
		},
		{
			name: "Send Failure",
			body: map[string]string{"email": "a@x.com"},
			setupMock: func(e *MockEmailSender) {
				e.On("Send", "a@x.com", mock.Anything, mock.Anything).Return(assert.AnError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, sender := newTestServer(t)
			tt.setupMock(sender)

			rec := postJSON(t, server.Router(), "/otp/request", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestHandleRequestCode_RateLimited(t *testing.T) {
	server, _, sender := newTestServer(t)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	router := server.Router()

	for i := 0; i < 3; i++ {
		rec := postJSON(t, router, "/otp/request", map[string]string{"email": "a@x.com"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postJSON(t, router, "/otp/request", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "RATE_LIMITED", body["error"])
	assert.Greater(t, body["retryAfterSeconds"].(float64), 0.0)
}

func TestHandleRequestCode_SameResponseForAnyEmail(t *testing.T) {
	// Anti-enumeration: known and unknown addresses get identical bodies.
	server, _, sender := newTestServer(t)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	router := server.Router()

	first := postJSON(t, router, "/otp/request", map[string]string{"email": "known@x.com"})
	second := postJSON(t, router, "/otp/request", map[string]string{"email": "unknown@y.com"})
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestHandleVerifyCode(t *testing.T) {
	tests := []struct {
		name           string
		email          string
		code           string
		requestFirst   bool
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Malformed Code",
			email:          "a@x.com",
			code:           "12345",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_REQUEST",
		},
		{
			name:           "Non Numeric Code",
			email:          "a@x.com",
			code:           "abcdef",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_REQUEST",
		},
		{
			name:           "Never Issued",
			email:          "a@x.com",
			code:           "123456",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "EXPIRED",
		},
		{
			name:           "Wrong Code",
			email:          "a@x.com",
			code:           "999999",
			requestFirst:   true,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_CODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, sender := newTestServer(t)
			sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			router := server.Router()

			if tt.requestFirst {
				rec := postJSON(t, router, "/otp/request", map[string]string{"email": tt.email})
				require.Equal(t, http.StatusOK, rec.Code)
			}

			rec := postJSON(t, router, "/otp/verify", map[string]string{
				"email": tt.email,
				"code":  tt.code,
			})
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestHandleVerifyCode_FullFlow(t *testing.T) {
	server, repo, sender := newTestServer(t)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("FindUserByEmail", mock.Anything, "a@x.com").Return(User{}, ErrUserNotFound).Once()
	repo.On("CreateUser", mock.Anything, "a@x.com").Return(User{ID: "u1", Email: "a@x.com"}, nil)
	router := server.Router()

	rec := postJSON(t, router, "/otp/request", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Wrong code first: two attempts remain.
	rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "999999"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_CODE", body["error"])
	assert.Equal(t, 2.0, body["remainingAttempts"])

	// Correct code succeeds and mints a session.
	rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "031942"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isNewUser"])
	token := body["token"].(string)
	require.NotEmpty(t, token)

	// The token works against a protected route.
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
	user := decodeBody(t, meRec)["user"].(map[string]any)
	assert.Equal(t, "u1", user["id"])
	assert.Equal(t, "a@x.com", user["email"])

	// Logout revokes it.
	req = httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	outRec := httptest.NewRecorder()
	router.ServeHTTP(outRec, req)
	require.Equal(t, http.StatusOK, outRec.Code)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	meRec = httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	assert.Equal(t, http.StatusUnauthorized, meRec.Code)

	// Used codes are gone.
	rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "031942"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EXPIRED", decodeBody(t, rec)["error"])
}

func TestHandleVerifyCode_MaxAttempts(t *testing.T) {
	server, _, sender := newTestServer(t)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	router := server.Router()

	rec := postJSON(t, router, "/otp/request", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ {
		rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "999999"})
		require.Equal(t, "INVALID_CODE", decodeBody(t, rec)["error"])
	}
	rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "999999"})
	assert.Equal(t, "MAX_ATTEMPTS", decodeBody(t, rec)["error"])

	// The correct code is dead now too.
	rec = postJSON(t, router, "/otp/verify", map[string]string{"email": "a@x.com", "code": "031942"})
	assert.Equal(t, "EXPIRED", decodeBody(t, rec)["error"])
}

func TestWithIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Email: "a@x.com"})
	ident, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", ident.UserID)
}
