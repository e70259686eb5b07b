package server

import (
	"net/http"
)

type healthResponse struct {
	Status     string `json:"status"`
	AppsCount  int    `json:"apps_count"`
	UsersCount int    `json:"users_count"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.Apps.Count(r.Context())
	if err != nil {
		s.unhealthy(w, err)
		return
	}
	users, err := s.store.Users.Count(r.Context())
	if err != nil {
		s.unhealthy(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, healthResponse{Status: "healthy", AppsCount: apps, UsersCount: users})
}

func (s *server) unhealthy(w http.ResponseWriter, err error) {
	s.logger.Error("health check failed", "error", err)
	s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
}
