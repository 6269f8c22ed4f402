package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST "+s.cfg.FlowPath, s.rateLimit(s.handleFlow))
	mux.HandleFunc("GET "+s.cfg.FlowPath, s.handleLiveness)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
