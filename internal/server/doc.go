// Package server implements the presence and room-broadcast core of the chat
// relay, together with its HTTP and WebSocket surface.
//
// The implementation is organized into specialized files for the presence
// registry, the broadcast hub, the session state machine, message
// construction, configuration, and per-connection client handling to keep the
// codebase maintainable and testable as the project grows.
package server
