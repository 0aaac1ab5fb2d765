package api

import (
	"net/http"
)

// handleRecentLogs serves the most recent captured log entries.
func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		NotFound(w, "log capture disabled")
		return
	}

	n := queryInt(r, "n", 100)
	if n > 1000 {
		n = 1000
	}
	OK(w, s.logs.Recent(n))
}
