package server

import (
	"net/http"

	"github.com/ternarybob/docpipe/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/operations", s.app.APIHandler.OperationsHandler)

	// API routes - Sessions
	mux.HandleFunc("/api/sessions", s.app.SessionHandler.CreateHandler) // POST - create session
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)             // /{id} and subpaths

	// API routes - Artifacts
	mux.HandleFunc("/api/artifacts/", s.handleArtifactRoutes) // GET /{id}, GET /{id}/download

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSessionRoutes routes /api/sessions/{id}[/action] requests
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	parts := handlers.PathSegments(r.URL.Path, "/api/sessions/")
	if len(parts) == 0 || len(parts) > 2 {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	id := parts[0]
	h := s.app.SessionHandler

	if len(parts) == 1 {
		routeByMethod(w, r, methodRoutes{
			"GET":    bindID(id, h.GetHandler),
			"DELETE": bindID(id, h.EndHandler),
		})
		return
	}

	switch parts[1] {
	case "artifacts":
		routeByMethod(w, r, methodRoutes{
			"GET":  bindID(id, h.ListArtifactsHandler),
			"POST": bindID(id, h.UploadHandler),
		})
	case "operations":
		routeByMethod(w, r, methodRoutes{"POST": bindID(id, h.ExecuteHandler)})
	case "reset":
		routeByMethod(w, r, methodRoutes{"POST": bindID(id, h.ResetHandler)})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleArtifactRoutes routes /api/artifacts/{id}[/download] requests
func (s *Server) handleArtifactRoutes(w http.ResponseWriter, r *http.Request) {
	parts := handlers.PathSegments(r.URL.Path, "/api/artifacts/")
	h := s.app.ArtifactHandler

	switch {
	case len(parts) == 1:
		routeByMethod(w, r, methodRoutes{"GET": bindID(parts[0], h.GetHandler)})
	case len(parts) == 2 && parts[1] == "download":
		routeByMethod(w, r, methodRoutes{"GET": bindID(parts[0], h.DownloadHandler)})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
