package server

import (
	"net/http"

	"github.com/ternarybob/slidegen/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Groups
	mux.HandleFunc("/api/groups", s.handleGroupsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/groups/", s.handleGroupRoutes) // GET/DELETE /{id}, POST /{id}/{action}

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // GET /{id}, GET /{id}/logs, POST /{id}/{action}

	// API routes - Global control
	mux.HandleFunc("/api/control/pause", s.app.ControlHandler.PauseAllHandler)
	mux.HandleFunc("/api/control/resume", s.app.ControlHandler.ResumeAllHandler)
	mux.HandleFunc("/api/control/cancel", s.app.ControlHandler.CancelAllHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleGroupsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.GroupHandler.ListGroupsHandler,
		s.app.GroupHandler.CreateGroupHandler,
	)
}

// handleGroupRoutes routes /api/groups/{id} and /api/groups/{id}/{action}
func (s *Server) handleGroupRoutes(w http.ResponseWriter, r *http.Request) {
	switch len(handlers.PathSegments(r.URL.Path, "/api/groups/")) {
	case 1:
		RouteResourceItem(w, r,
			s.app.GroupHandler.GetGroupHandler,
			s.app.GroupHandler.DeleteGroupHandler,
		)
	case 2:
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: s.app.GroupHandler.GroupActionHandler,
		})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleJobRoutes routes /api/jobs/{id}, /api/jobs/{id}/logs and /api/jobs/{id}/{action}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if RouteByPathSuffix(w, r, "/api/jobs/", []PathSuffixRouter{
		{Suffix: "/logs", Handler: s.app.JobHandler.GetJobLogsHandler},
	}) {
		return
	}

	switch len(handlers.PathSegments(r.URL.Path, "/api/jobs/")) {
	case 1:
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet: s.app.JobHandler.GetJobHandler,
		})
	case 2:
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: s.app.JobHandler.JobActionHandler,
		})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
