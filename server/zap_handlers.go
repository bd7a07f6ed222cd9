package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/resource"
	"github.com/not-mt/zapd/surge"
	"github.com/not-mt/zapd/sym"
)

// handleZapSubmit serves POST /api/v1/{kind}/{id}/zap. The task is
// accepted for async execution and returned immediately with 202; the
// caller polls the status endpoint (or the stream) for progress.
func (s *Server) handleZapSubmit(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := s.repos.ByKind(kind)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		id, err := parsePathID(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		// An empty body means the default duration.
		duration := int64(surge.DefaultDuration)
		var req ZapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
		if req.Duration != nil {
			duration = *req.Duration
		}

		// The resource must exist before any task row is created. A zap
		// against a missing resource is a plain 404, never a queued job.
		if _, err := repo.GetByID(r.Context(), s.db, id); err != nil {
			s.handleError(w, r, err)
			return
		}

		task, err := surge.NewTask(kind, id, duration, logger.RequestIDFromContext(r.Context()))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		accepted, err := s.queue.Enqueue(r.Context(), task)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		s.logger.Infow(sym.Surge+" Zap accepted",
			logger.FieldTaskID, shortID(accepted.UUID),
			logger.FieldResource, kind,
			logger.FieldResourceID, id,
			logger.FieldDuration, duration)
		writeJSON(w, http.StatusAccepted, accepted)
	}
}

// handleZapStatus serves GET /api/v1/{kind}/{id}/zap/{uuid}/status.
// Terminal records come back unchanged on every poll.
func (s *Server) handleZapStatus(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parsePathID(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		task, err := s.queue.GetForResource(r.Context(), kind, id, r.PathValue("uuid"))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// handleZapList serves GET /api/v1/{kind}/{id}/zaps, newest first.
func (s *Server) handleZapList(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parsePathID(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		limit := parseIntQueryParam(r, "limit", 20, 1, 100)

		tasks, err := s.queue.ListForResource(r.Context(), kind, id, limit)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"zaps":  tasks,
			"count": len(tasks),
		})
	}
}
