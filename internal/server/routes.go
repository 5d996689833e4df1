package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Post("/auth/login", s.handleLogin)
	s.router.Post("/auth/logout", s.handleLogout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))
		r.Use(requireAuth(s.sessions))

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)

		r.Post("/pair", s.handlePair)

		r.Get("/devices", s.handleListDevices)
		r.Get("/history", s.handleListHistory)
		r.Get("/channels/search", s.handleSearchChannels)

		r.Get("/ws", s.handleDeviceWS)
	})
}
