// Package server drives the per-connection protocol state machine that
// coordinates the presence registry, the hub, and the content filter.
package server

import (
	"errors"
	"fmt"
)

// Session errors surfaced to the requesting connection. None of these affect
// other sessions or terminate the connection.
var (
	// ErrNotJoined indicates an action attempted before a successful join.
	ErrNotJoined = errors.New("user is not signed in")
	// ErrAlreadyJoined indicates a join attempt on a connection that already
	// holds a presence record.
	ErrAlreadyJoined = errors.New("user is already signed in")
	// ErrRejectedContent indicates a text message blocked by the content filter.
	ErrRejectedContent = errors.New("profanity is not allowed")
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateJoined
	stateClosed
)

// Session is the protocol state machine for one connection: connected until a
// successful join, joined until disconnect, then closed. Presence and room
// subscription are created and torn down exactly once per lifetime; there is
// no rename, leave, or room-switch transition.
//
// Methods are invoked only from the connection's read loop and are not safe
// for concurrent use. The shared structures the session mutates (registry,
// hub) do their own locking.
type Session struct {
	connID   string
	state    sessionState
	registry *Registry
	hub      *Hub
	filter   Filter
}

func newSession(connID string, registry *Registry, hub *Hub, filter Filter) *Session {
	return &Session{
		connID:   connID,
		registry: registry,
		hub:      hub,
		filter:   filter,
	}
}

// Join registers the connection in the room under username. On success it
// subscribes the connection, welcomes it directly, announces the arrival to
// the rest of the room, and sends the updated roster to the whole room. On
// failure the session stays in its connected state with no subscription and
// no broadcast.
func (s *Session) Join(username, room string) error {
	if s.state != stateConnected {
		return ErrAlreadyJoined
	}

	user, err := s.registry.Add(s.connID, username, room)
	if err != nil {
		return err
	}
	s.state = stateJoined

	s.hub.Subscribe(s.connID, user.Room)
	s.hub.EmitTo(s.connID, EventMessage, NewMessage(AdminName, "Welcome"))
	s.hub.EmitToRoomExcluding(s.connID, user.Room, EventMessage,
		NewMessage(user.Username, fmt.Sprintf("%s has joined!", user.Username)))
	s.hub.EmitToRoom(user.Room, EventRoomData,
		NewRoomData(user.Room, s.registry.UsersInRoom(user.Room)))

	return nil
}

// SendMessage broadcasts a text message to the sender's room, sender
// included, so everyone renders the same server timestamp. Filtered text is
// rejected with ErrRejectedContent and nothing is broadcast.
func (s *Session) SendMessage(text string) error {
	user := s.activeUser()
	if user == nil {
		return ErrNotJoined
	}
	if s.filter.IsDisallowed(text) {
		return ErrRejectedContent
	}

	s.hub.EmitToRoom(user.Room, EventMessage, NewMessage(user.Username, text))
	return nil
}

// SendLocation broadcasts a map link for the given coordinates to the
// sender's room, sender included. Coordinates are not content-filtered.
func (s *Session) SendLocation(lat, lng float64) error {
	user := s.activeUser()
	if user == nil {
		return ErrNotJoined
	}

	s.hub.EmitToRoom(user.Room, EventLocationMessage, NewLocationMessage(user.Username, lat, lng))
	return nil
}

// Disconnect closes the session. If the connection had joined, its presence
// and subscription are removed and the remaining room members receive a
// departure notice and an updated roster. Disconnect before join is a silent
// no-op; calling Disconnect more than once is safe.
func (s *Session) Disconnect() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed

	user := s.registry.Remove(s.connID)
	if user == nil {
		return
	}

	s.hub.Unsubscribe(s.connID, user.Room)
	s.hub.EmitToRoom(user.Room, EventMessage,
		NewMessage(AdminName, fmt.Sprintf("%s has left", user.Username)))
	s.hub.EmitToRoom(user.Room, EventRoomData,
		NewRoomData(user.Room, s.registry.UsersInRoom(user.Room)))
}

// activeUser returns the presence record for this connection, or nil. The
// registry lookup doubles as the defensive NotJoined guard: even if the state
// flag and the registry ever disagreed, no broadcast happens without a record.
func (s *Session) activeUser() *User {
	if s.state != stateJoined {
		return nil
	}
	return s.registry.Get(s.connID)
}

// ackError maps a session error to the acknowledgement string sent back to
// the requesting connection.
func ackError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "Username and room are required"
	case errors.Is(err, ErrDuplicateUsername):
		return "Username is in use"
	case errors.Is(err, ErrNotJoined):
		return "User is not signed in"
	case errors.Is(err, ErrAlreadyJoined):
		return "User is already signed in"
	case errors.Is(err, ErrRejectedContent):
		return "Profanity is not allowed"
	default:
		return err.Error()
	}
}
