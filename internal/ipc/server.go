package ipc

import (
	"context"
	"net/http"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: Routes(h),
	}

	return &Server{
		httpServer: srv,
	}
}

// Routes builds the full API route table.
func Routes(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Case lifecycle endpoints.
	mux.HandleFunc("POST /api/v1/case", h.CreateCase)
	mux.HandleFunc("GET /api/v1/case/{caseID}", h.GetCase)
	mux.HandleFunc("POST /api/v1/case/{caseID}/run", h.RunCase)
	mux.HandleFunc("POST /api/v1/case/{caseID}/resume", h.ResumeCase)

	// Audit endpoints.
	mux.HandleFunc("GET /api/v1/case/{caseID}/activity", h.ListActivity)
	mux.HandleFunc("GET /api/v1/case/{caseID}/activity/stream", h.StreamActivity)

	// Cost endpoint.
	mux.HandleFunc("GET /api/v1/case/{caseID}/cost", h.GetCost)

	return corsMiddleware(mux)
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for local UI access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
