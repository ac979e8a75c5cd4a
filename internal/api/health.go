package api

import (
	"net/http"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	return http.StatusOK, "ok", nil
}

// ReadinessHandler reports the dependency checks. An unhealthy dependency
// flips the status code so orchestration stops routing traffic here.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	status := s.checker.GetHealthStatus()

	if !status.Healthy {
		return http.StatusServiceUnavailable, status, nil
	}

	return http.StatusOK, status, nil
}
