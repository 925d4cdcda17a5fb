package device

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

const testToken = "test-token"

// fakeAPI is a minimal in-memory stand-in for the sync service, recording
// calls so tests can assert on replay order and conflict handling.
type fakeAPI struct {
	mu        sync.Mutex
	playlists map[string]playlist.Playlist
	upserts   []string
	deletes   []string
	syncCalls int

	failing     bool
	failAfter   int // fail every call once this many upserts happened; <0 disables
	conflictIDs map[string]bool

	srv *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		playlists:   map[string]playlist.Playlist{},
		conflictIDs: map[string]bool{},
		failAfter:   -1,
	}

	r := chi.NewRouter()
	r.Post("/api/auth/otp/verify", func(w http.ResponseWriter, req *http.Request) {
		writeResp(w, http.StatusOK, map[string]any{
			"success":   true,
			"token":     testToken,
			"user":      map[string]string{"id": "u1", "email": "a@x.com"},
			"isNewUser": false,
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(f.requireToken)
		r.Get("/api/playlists", f.handleList)
		r.Post("/api/playlists/sync", f.handleSyncAll)
		r.Put("/api/playlists/{id}", f.handleUpsert)
		r.Delete("/api/playlists/{id}", f.handleDelete)
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func writeResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) client() *Client {
	c := NewClient(f.srv.URL)
	c.SetToken(testToken)
	return c
}

func (f *fakeAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+testToken {
			writeResp(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "UNAUTHORIZED"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (f *fakeAPI) unavailable(w http.ResponseWriter) bool {
	if f.failing || (f.failAfter >= 0 && len(f.upserts)+len(f.deletes) >= f.failAfter) {
		writeResp(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "INTERNAL_ERROR"})
		return true
	}
	return false
}

func (f *fakeAPI) handleList(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable(w) {
		return
	}
	pls := []playlist.Playlist{}
	for _, pl := range f.playlists {
		pls = append(pls, pl)
	}
	writeResp(w, http.StatusOK, map[string]any{"playlists": pls})
}

func (f *fakeAPI) handleSyncAll(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable(w) {
		return
	}
	var body struct {
		Playlists []playlist.Playlist `json:"playlists"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeResp(w, http.StatusBadRequest, map[string]any{"success": false, "error": "INVALID_REQUEST"})
		return
	}
	f.playlists = map[string]playlist.Playlist{}
	for _, pl := range body.Playlists {
		f.playlists[pl.ID] = pl
	}
	f.syncCalls++
	writeResp(w, http.StatusOK, map[string]any{"success": true, "syncedCount": len(body.Playlists)})
}

func (f *fakeAPI) handleUpsert(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable(w) {
		return
	}
	var pl playlist.Playlist
	if err := json.NewDecoder(req.Body).Decode(&pl); err != nil {
		writeResp(w, http.StatusBadRequest, map[string]any{"success": false, "error": "INVALID_REQUEST"})
		return
	}
	f.upserts = append(f.upserts, pl.ID)
	if f.conflictIDs[pl.ID] {
		writeResp(w, http.StatusOK, map[string]any{"success": true, "conflict": true, "keptVersion": "cloud"})
		return
	}
	f.playlists[pl.ID] = pl
	writeResp(w, http.StatusOK, map[string]any{"success": true})
}

func (f *fakeAPI) handleDelete(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable(w) {
		return
	}
	id := chi.URLParam(req, "id")
	f.deletes = append(f.deletes, id)
	if _, ok := f.playlists[id]; !ok {
		writeResp(w, http.StatusNotFound, map[string]any{"success": false, "error": "NOT_FOUND"})
		return
	}
	delete(f.playlists, id)
	writeResp(w, http.StatusOK, map[string]any{"success": true})
}

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := OpenLocalStore(":memory:")
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
