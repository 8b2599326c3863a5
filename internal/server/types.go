// Package server defines the JSON wire protocol shared by client and hub
// logic, plus small helpers reused across both.
package server

import (
	"encoding/json"
	"strings"
)

// Client-to-server event names.
const (
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
	EventSendLocation = "sendLocation"
)

// Server-to-client event names.
const (
	EventMessage         = "message"
	EventLocationMessage = "locationMessage"
	EventRoomData        = "roomData"
	EventAck             = "ack"
)

// Envelope frames every message in both directions: an event name plus an
// event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// SendMessageRequest is the payload of a sendMessage event.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendLocationRequest is the payload of a sendLocation event.
type SendLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ack is the response to every client-to-server event. Error is empty when
// the request was accepted.
type Ack struct {
	For   string `json:"for"`
	Error string `json:"error,omitempty"`
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
