// Package server implements the presence registry that owns the mapping from
// connection identity to (username, room) and answers room membership queries.
package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Registry errors returned by Add. Removing or looking up an absent
// connection is never an error; disconnect-ordering races are expected.
var (
	// ErrInvalidInput indicates a username or room that is empty after trimming.
	ErrInvalidInput = errors.New("username and room are required")
	// ErrDuplicateUsername indicates the normalized username is already taken
	// within the requested room.
	ErrDuplicateUsername = errors.New("username is in use")
)

// User is one active presence record: a connection that has joined a room
// under a display name. Username and Room are stored normalized (trimmed,
// lower-cased) and are immutable for the connection's lifetime.
type User struct {
	ConnID   string
	Username string
	Room     string
}

// Registry is the authoritative in-memory presence store. It exclusively owns
// User records; room membership is derived from the same structure under the
// same lock, so membership queries can never observe stale state.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string // connection IDs in join order, for stable rosters
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*User),
	}
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Add validates and registers a presence record for connID. It fails with
// ErrInvalidInput if username or room is empty after trimming, with
// ErrAlreadyJoined if the connection already holds a record, and with
// ErrDuplicateUsername if the normalized username is already present in the
// room. The duplicate check and the insert happen under a single lock hold so
// concurrent joins cannot race the same (room, username) pair in.
func (r *Registry) Add(connID, username, room string) (*User, error) {
	name := normalizeIdentity(username)
	roomName := normalizeIdentity(room)
	if name == "" || roomName == "" {
		return nil, ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[connID]; exists {
		return nil, ErrAlreadyJoined
	}
	for _, id := range r.order {
		u := r.users[id]
		if u.Room == roomName && u.Username == name {
			return nil, ErrDuplicateUsername
		}
	}

	user := &User{ConnID: connID, Username: name, Room: roomName}
	r.users[connID] = user
	r.order = append(r.order, connID)

	copied := *user
	return &copied, nil
}

// Remove deletes the presence record for connID and returns it, or nil if the
// connection never joined. The nil path is a valid no-op, not an error.
func (r *Registry) Remove(connID string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[connID]
	if !exists {
		return nil
	}

	delete(r.users, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	copied := *user
	return &copied
}

// Get returns a copy of the presence record for connID, or nil if absent.
func (r *Registry) Get(connID string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[connID]
	if !exists {
		return nil
	}
	copied := *user
	return &copied
}

// UsersInRoom returns the current members of the normalized room in join
// order. A user removed and re-added moves to the end of the roster.
func (r *Registry) UsersInRoom(room string) []User {
	roomName := normalizeIdentity(room)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []User
	for _, id := range r.order {
		if u := r.users[id]; u.Room == roomName {
			members = append(members, *u)
		}
	}
	return members
}

// Rooms returns the names of all rooms that currently have members, sorted
// for deterministic output.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var rooms []string
	for _, u := range r.users {
		if _, ok := seen[u.Room]; !ok {
			seen[u.Room] = struct{}{}
			rooms = append(rooms, u.Room)
		}
	}
	sort.Strings(rooms)
	return rooms
}
