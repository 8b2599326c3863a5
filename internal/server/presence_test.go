package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAddNormalizesIdentity(t *testing.T) {
	registry := NewRegistry()

	user, err := registry.Add("conn-1", "  Alice ", " LOBBY ")
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("expected normalized username %q, got %q", "alice", user.Username)
	}
	if user.Room != "lobby" {
		t.Errorf("expected normalized room %q, got %q", "lobby", user.Room)
	}

	got := registry.Get("conn-1")
	if got == nil {
		t.Fatal("Get returned nil after successful Add")
	}
	if got.Username != "alice" || got.Room != "lobby" {
		t.Errorf("Get returned %+v, want alice/lobby", got)
	}
}

func TestAddRejectsEmptyIdentity(t *testing.T) {
	registry := NewRegistry()

	cases := []struct {
		name     string
		username string
		room     string
	}{
		{"empty username", "", "lobby"},
		{"whitespace username", "   ", "lobby"},
		{"empty room", "alice", ""},
		{"whitespace room", "alice", "  \t "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := registry.Add("conn-1", tc.username, tc.room); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDuplicateUsernameScopedToRoom(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Add("conn-1", "alice", "lobby"); err != nil {
		t.Fatalf("first Add returned error: %v", err)
	}

	// Equal under normalization, same room: rejected.
	if _, err := registry.Add("conn-2", " ALICE ", "Lobby"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if registry.Get("conn-2") != nil {
		t.Error("failed Add left a presence record behind")
	}

	// Same username in a different room: allowed.
	if _, err := registry.Add("conn-3", "alice", "games"); err != nil {
		t.Errorf("same username in different room returned error: %v", err)
	}
}

func TestAddRejectsDuplicateConnID(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Add("conn-1", "alice", "lobby"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if _, err := registry.Add("conn-1", "bob", "lobby"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined for reused connection ID, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Add("conn-1", "alice", "lobby"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	removed := registry.Remove("conn-1")
	if removed == nil {
		t.Fatal("Remove returned nil for present connection")
	}
	if removed.Username != "alice" {
		t.Errorf("Remove returned %+v, want alice", removed)
	}

	if registry.Get("conn-1") != nil {
		t.Error("Get returned a record after Remove")
	}
	if members := registry.UsersInRoom("lobby"); len(members) != 0 {
		t.Errorf("UsersInRoom still lists %d members after Remove", len(members))
	}

	// Removing an absent connection is a no-op, not an error.
	if registry.Remove("conn-1") != nil {
		t.Error("second Remove returned a record")
	}
	if registry.Remove("never-joined") != nil {
		t.Error("Remove of unknown connection returned a record")
	}
}

func TestUsersInRoomInsertionOrder(t *testing.T) {
	registry := NewRegistry()

	mustAdd := func(connID, username string) {
		t.Helper()
		if _, err := registry.Add(connID, username, "lobby"); err != nil {
			t.Fatalf("Add(%s) returned error: %v", username, err)
		}
	}

	mustAdd("conn-a", "alice")
	mustAdd("conn-b", "bob")

	registry.Remove("conn-a")
	mustAdd("conn-a2", "alice")

	members := registry.UsersInRoom("lobby")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].Username != "bob" || members[1].Username != "alice" {
		t.Errorf("expected roster [bob alice], got [%s %s]", members[0].Username, members[1].Username)
	}
}

func TestUsersInRoomNormalizesQuery(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Add("conn-1", "alice", "lobby"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if members := registry.UsersInRoom("  LOBBY "); len(members) != 1 {
		t.Errorf("expected 1 member for normalized query, got %d", len(members))
	}
	if members := registry.UsersInRoom("games"); len(members) != 0 {
		t.Errorf("expected empty roster for other room, got %d members", len(members))
	}
}

func TestRooms(t *testing.T) {
	registry := NewRegistry()

	if rooms := registry.Rooms(); len(rooms) != 0 {
		t.Errorf("expected no rooms, got %v", rooms)
	}

	_, _ = registry.Add("conn-1", "alice", "lobby")
	_, _ = registry.Add("conn-2", "bob", "games")
	_, _ = registry.Add("conn-3", "carol", "lobby")

	rooms := registry.Rooms()
	if len(rooms) != 2 || rooms[0] != "games" || rooms[1] != "lobby" {
		t.Errorf("expected [games lobby], got %v", rooms)
	}
}

// TestConcurrentJoinsSameIdentity drives the check-then-insert race: many
// connections competing for the same (room, username) pair must produce
// exactly one registration.
func TestConcurrentJoinsSameIdentity(t *testing.T) {
	registry := NewRegistry()

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := registry.Add(fmt.Sprintf("conn-%d", n), "alice", "lobby")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrDuplicateUsername) {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly 1 successful registration, got %d", successes)
	}
	if members := registry.UsersInRoom("lobby"); len(members) != 1 {
		t.Errorf("expected 1 member after concurrent joins, got %d", len(members))
	}
}
