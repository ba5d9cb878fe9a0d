package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/check", s.handleCheck)
	mux.HandleFunc("/render", s.handleRender)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/record-id", s.handleRecordID)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/artifacts", s.handleArtifacts)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	return mux
}
