package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	otp      *OtpService
	sessions *SessionService
}

func NewServer(otp *OtpService, sessions *SessionService) *Server {
	return &Server{otp: otp, sessions: sessions}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Post("/otp/request", s.handleRequestCode)
	r.Post("/otp/verify", s.handleVerifyCode)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.sessions))
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})

	return r
}
