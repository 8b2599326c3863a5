// Package server wires HTTP handlers into a ServeMux for the chat relay.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes:
// health check, stats, WebSocket endpoint, and test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/test", s.handleTestPage)
	return mux
}
