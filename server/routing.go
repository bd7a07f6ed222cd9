package server

import (
	"net/http"

	"github.com/not-mt/zapd/auth"
	"github.com/not-mt/zapd/resource"
)

// setupHTTPRoutes configures all HTTP handlers. Kind strings double as
// URL segments and ACL section names, so widgets and gadgets share one
// registration loop.
func (s *Server) setupHTTPRoutes() {
	for _, kind := range []resource.Kind{resource.KindWidgets, resource.KindGadgets} {
		section := string(kind)
		base := "/api/v1/" + section

		s.route("GET "+base, s.handleListResources(kind), s.evaluator.Require(section, auth.PermissionRead))
		s.route("POST "+base, s.handleCreateResource(kind), s.evaluator.Require(section, auth.PermissionWrite))
		s.route("GET "+base+"/{id}", s.handleGetResource(kind), s.evaluator.Require(section, auth.PermissionRead))
		s.route("PATCH "+base+"/{id}", s.handleUpdateResource(kind), s.evaluator.Require(section, auth.PermissionWrite))
		s.route("DELETE "+base+"/{id}", s.handleDeleteResource(kind), s.evaluator.Require(section, auth.PermissionWrite))

		// Async zap surface: submit returns 202 immediately, status is
		// polled by uuid, zaps lists the task history for one resource.
		s.route("POST "+base+"/{id}/zap", s.handleZapSubmit(kind),
			s.throttleMiddleware,
			s.evaluator.Require(section, auth.PermissionZap))
		s.route("GET "+base+"/{id}/zap/{uuid}/status", s.handleZapStatus(kind), s.evaluator.Require(section, auth.PermissionRead))
		s.route("GET "+base+"/{id}/zaps", s.handleZapList(kind), s.evaluator.Require(section, auth.PermissionRead))
	}

	s.route("GET /api/v1/zaps/stream", s.handleZapStream) // auth inside the handler: needs read on every section
	s.route("GET /api/v1/status", s.handleStatus)
	s.route("GET /health/liveness", s.handleLiveness)
	s.route("GET /health/readiness", s.handleReadiness)

	// Method-scoped patterns never match OPTIONS, so preflight requests
	// need their own registration. corsMiddleware answers them directly.
	s.mux.HandleFunc("OPTIONS /api/v1/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
}

// route registers a handler with the shared middleware stack. Wraps
// listed first sit outermost, after CORS and request-id handling.
func (s *Server) route(pattern string, handler http.HandlerFunc, wraps ...func(http.HandlerFunc) http.HandlerFunc) {
	h := handler
	for i := len(wraps) - 1; i >= 0; i-- {
		h = wraps[i](h)
	}
	s.mux.HandleFunc(pattern, s.corsMiddleware(s.requestIDMiddleware(h)))
}
