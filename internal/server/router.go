package server

import (
	"net/http"
	"strconv"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/generate", s.instrument("generate", s.handleGenerate))
	mux.Handle("/validate", s.instrument("validate", s.handleValidate))
	mux.Handle("/upload", s.instrument("upload", s.handleUpload))
	mux.Handle("/manifest", s.instrument("manifest", s.handleManifest))
	mux.Handle("/vic", s.instrument("vic", s.handleVIC))
	mux.Handle("/artifacts", s.instrument("artifacts", s.handleArtifacts))
	mux.Handle("/artifacts/", s.instrument("artifacts", s.handleArtifacts))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
