package server

import (
	"net/http"

	"github.com/not-mt/zapd/version"
)

// handleLiveness serves GET /health/liveness. Process-alive only, no
// dependency checks, so a wedged store never flaps the liveness probe.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness serves GET /health/readiness. Ready means the server
// state is Ready, the database answers a ping, and the task store
// answers a cheap stats round-trip.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	var resp ReadinessResponse
	state := s.State()
	resp.State = state.String()

	var reasons []string
	if state != ServerStateReady {
		reasons = append(reasons, "server state is "+state.String())
	}
	if err := s.db.PingContext(r.Context()); err != nil {
		reasons = append(reasons, "database unreachable: "+err.Error())
	} else if _, err := s.queue.Stats(r.Context()); err != nil {
		reasons = append(reasons, "task store unavailable: "+err.Error())
	}

	metrics := s.pool.SystemMetrics(r.Context())
	resp.Memory.UsedGB = metrics.MemoryUsedGB
	resp.Memory.TotalGB = metrics.MemoryTotalGB
	resp.Memory.Percent = metrics.MemoryPercent

	if len(reasons) > 0 {
		resp.Status = "unavailable"
		resp.Reasons = reasons
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "ready"
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus serves GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, StatusResponse{
		Version:     version.Get(),
		ServerState: s.State().String(),
		Stats:       stats,
		Metrics:     s.pool.SystemMetrics(r.Context()),
		Clients:     clients,
	})
}
