package playlist

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hydai/MizukiPrism-sub000/internal/auth"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	playlists, err := s.store.ListByOwner(ctx, ident.UserID)
	if err != nil {
		log.Printf("playlist: list for %s: %v", ident.UserID, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playlists": playlists,
	})
}

// handleSyncAll is the full-replacement batch push: the incoming set becomes
// the owner's entire cloud state in one transaction.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var body struct {
		Playlists []Playlist `json:"playlists"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	for _, pl := range body.Playlists {
		if err := pl.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid playlist "+pl.ID)
			return
		}
	}

	if err := s.store.ReplaceAll(ctx, ident.UserID, body.Playlists); err != nil {
		log.Printf("playlist: sync all for %s: %v", ident.UserID, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"syncedCount": len(body.Playlists),
	})
}

// handleUpsert writes one playlist with the last-write-wins conflict check.
// A rejected write is not a failure: the response reports which side was
// kept and the client is expected to re-fetch.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var pl Playlist
	if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if chi.URLParam(r, "id") != pl.ID {
		writeError(w, http.StatusBadRequest, "ID_MISMATCH", "URL id does not match body id")
		return
	}
	if err := pl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid playlist")
		return
	}

	conflict, err := s.store.Upsert(ctx, ident.UserID, pl)
	if err != nil {
		log.Printf("playlist: upsert %s for %s: %v", pl.ID, ident.UserID, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "database error")
		return
	}

	if conflict {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"conflict":    true,
			"keptVersion": "cloud",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.Delete(ctx, ident.UserID, id); err != nil {
		if IsNotFound(err) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "playlist not found")
			return
		}
		log.Printf("playlist: delete %s for %s: %v", id, ident.UserID, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
