package server

import (
	"net/http"
	"strconv"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/resource"
)

// resourceUpdateRequest is the PATCH body for widgets and gadgets.
// Absent fields are left unchanged.
type resourceUpdateRequest struct {
	Name   *string `json:"name"`
	Height *string `json:"height"`
	Mass   *string `json:"mass"`
}

// parsePathID parses the {id} path segment as a positive integer.
func parsePathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequestError("invalid resource id: %q", raw)
	}
	return id, nil
}

// handleListResources serves GET /api/v1/{kind}
func (s *Server) handleListResources(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := s.repos.ByKind(kind)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		limit := parseIntQueryParam(r, "limit", 50, 1, 200)
		offset := parseIntQueryParam(r, "offset", 0, 0, 1000000)

		records, err := repo.List(r.Context(), s.db, limit, offset)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			string(kind): records,
			"count":      len(records),
		})
	}
}

// handleGetResource serves GET /api/v1/{kind}/{id}
func (s *Server) handleGetResource(kind resource.Kind) http.HandlerFunc {
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
		record, err := repo.GetByID(r.Context(), s.db, id)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// handleCreateResource serves POST /api/v1/{kind}
func (s *Server) handleCreateResource(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := s.repos.ByKind(kind)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		var rec resource.Record
		if readJSON(w, r, &rec) != nil {
			return
		}
		if err := rec.Validate(); err != nil {
			s.handleError(w, r, err)
			return
		}
		created, err := repo.Create(r.Context(), s.db, &rec)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.logger.Infow("Resource created",
			logger.FieldResource, kind,
			logger.FieldResourceID, created.ID,
			"name", created.Name)
		writeJSON(w, http.StatusOK, created)
	}
}

// handleUpdateResource serves PATCH /api/v1/{kind}/{id}
func (s *Server) handleUpdateResource(kind resource.Kind) http.HandlerFunc {
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
		var req resourceUpdateRequest
		if readJSON(w, r, &req) != nil {
			return
		}

		existing, err := repo.GetByID(r.Context(), s.db, id)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.Name != nil {
			existing.Name = *req.Name
		}
		if req.Height != nil {
			existing.Height = req.Height
		}
		if req.Mass != nil {
			existing.Mass = req.Mass
		}
		if err := existing.Validate(); err != nil {
			s.handleError(w, r, err)
			return
		}

		updated, err := repo.Update(r.Context(), s.db, existing)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// handleDeleteResource serves DELETE /api/v1/{kind}/{id}
func (s *Server) handleDeleteResource(kind resource.Kind) http.HandlerFunc {
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
		if err := repo.Delete(r.Context(), s.db, id); err != nil {
			s.handleError(w, r, err)
			return
		}
		s.logger.Infow("Resource deleted", logger.FieldResource, kind, logger.FieldResourceID, id)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"deleted": true,
			"id":      id,
		})
	}
}
