package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	store Store
}

func NewServer(store Store) *Server {
	return &Server{store: store}
}

// Router returns the playlist sync routes. Middlewares (the auth gate in
// production) apply to every route: all of them operate on the
// authenticated owner's playlists only.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/", s.handleList)
	r.Post("/sync", s.handleSyncAll)
	r.Put("/{id}", s.handleUpsert)
	r.Delete("/{id}", s.handleDelete)

	return r
}
