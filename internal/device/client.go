package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

// APIError is a structured failure from the sync API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the auth + playlist sync API. It holds the bearer token
// after a successful code verification.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Token() string         { return c.token }
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Code: apiErr.Error, Message: apiErr.Message}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) RequestCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/otp/request",
		map[string]string{"email": email}, nil)
}

type VerifyResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	User      AuthUser  `json:"user"`
	IsNewUser bool      `json:"isNewUser"`
}

type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// VerifyCode exchanges a code for a session token and stores it on the
// client.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (VerifyResponse, error) {
	var resp VerifyResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/otp/verify",
		map[string]string{"email": email, "code": code}, &resp)
	if err != nil {
		return VerifyResponse{}, err
	}
	c.token = resp.Token
	return resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func (c *Client) Me(ctx context.Context) (AuthUser, error) {
	var resp struct {
		User AuthUser `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp)
	return resp.User, err
}

func (c *Client) Playlists(ctx context.Context) ([]playlist.Playlist, error) {
	var resp struct {
		Playlists []playlist.Playlist `json:"playlists"`
	}
	err := c.do(ctx, http.MethodGet, "/api/playlists", nil, &resp)
	return resp.Playlists, err
}

func (c *Client) SyncAll(ctx context.Context, pls []playlist.Playlist) (int, error) {
	var resp struct {
		SyncedCount int `json:"syncedCount"`
	}
	err := c.do(ctx, http.MethodPost, "/api/playlists/sync",
		map[string]any{"playlists": pls}, &resp)
	return resp.SyncedCount, err
}

type UpsertResult struct {
	Conflict    bool   `json:"conflict"`
	KeptVersion string `json:"keptVersion"`
}

func (c *Client) Upsert(ctx context.Context, pl playlist.Playlist) (UpsertResult, error) {
	var resp UpsertResult
	err := c.do(ctx, http.MethodPut, "/api/playlists/"+pl.ID, pl, &resp)
	return resp, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/playlists/"+id, nil, nil)
}
