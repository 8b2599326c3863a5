package server

import (
	"testing"
	"time"
)

func TestEmitToDeliversToSingleConnection(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)
	bob := newTestClient(t, hub)

	hub.EmitTo(alice.id, EventMessage, NewMessage(AdminName, "Welcome"))

	var msg Message
	recvEvent(t, alice, EventMessage, &msg)
	if msg.Body != "Welcome" {
		t.Errorf("expected welcome body, got %q", msg.Body)
	}
	expectNoEvent(t, bob)
}

func TestEmitToUnknownConnection(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)

	// Delivering to a connection that is gone is a silent no-op.
	hub.EmitTo("no-such-connection", EventMessage, NewMessage(AdminName, "hi"))
	expectNoEvent(t, alice)
}

func TestEmitToRoomRespectsSubscriptions(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)
	bob := newTestClient(t, hub)
	carol := newTestClient(t, hub)

	hub.Subscribe(alice.id, "lobby")
	hub.Subscribe(bob.id, "lobby")
	hub.Subscribe(carol.id, "games")

	hub.EmitToRoom("lobby", EventMessage, NewMessage("alice", "hello"))

	recvEvent(t, alice, EventMessage, nil)
	recvEvent(t, bob, EventMessage, nil)
	expectNoEvent(t, carol)
}

func TestEmitToRoomExcludingSender(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)
	bob := newTestClient(t, hub)

	hub.Subscribe(alice.id, "lobby")
	hub.Subscribe(bob.id, "lobby")

	hub.EmitToRoomExcluding(alice.id, "lobby", EventMessage, NewMessage("alice", "alice has joined!"))

	recvEvent(t, bob, EventMessage, nil)
	expectNoEvent(t, alice)
}

func TestSubscribeMovesConnectionBetweenRooms(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)

	hub.Subscribe(alice.id, "lobby")
	hub.Subscribe(alice.id, "lobby") // idempotent
	hub.Subscribe(alice.id, "games")

	hub.EmitToRoom("lobby", EventMessage, NewMessage(AdminName, "lobby msg"))
	hub.EmitToRoom("games", EventMessage, NewMessage(AdminName, "games msg"))

	var msg Message
	recvEvent(t, alice, EventMessage, &msg)
	if msg.Body != "games msg" {
		t.Errorf("expected only the games message, got %q", msg.Body)
	}
	expectNoEvent(t, alice)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)

	hub.Subscribe(alice.id, "lobby")
	hub.Unsubscribe(alice.id, "lobby")
	hub.Unsubscribe(alice.id, "lobby") // no-op when not subscribed

	hub.EmitToRoom("lobby", EventMessage, NewMessage(AdminName, "hi"))
	expectNoEvent(t, alice)
}

func TestRoomEventOrderingPreserved(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)
	hub.Subscribe(alice.id, "lobby")

	bodies := []string{"one", "two", "three", "four"}
	for _, body := range bodies {
		hub.EmitToRoom("lobby", EventMessage, NewMessage("bob", body))
	}

	for _, want := range bodies {
		var msg Message
		recvEvent(t, alice, EventMessage, &msg)
		if msg.Body != want {
			t.Errorf("expected %q, got %q", want, msg.Body)
		}
	}
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := startTestHub(t)
	alice := newTestClient(t, hub)
	bob := newTestClient(t, hub)
	hub.Subscribe(alice.id, "lobby")
	hub.Subscribe(bob.id, "lobby")

	hub.unregister <- alice
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// Broadcasts to the room no longer target the removed client.
	hub.EmitToRoom("lobby", EventMessage, NewMessage(AdminName, "hi"))
	recvEvent(t, bob, EventMessage, nil)

	// The removed client's send channel is closed.
	select {
	case _, ok := <-alice.send:
		if ok {
			t.Error("expected closed send channel for unregistered client")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("send channel not closed after unregister")
	}
}

// TestSlowClientDropped verifies that a connection whose send buffer is full
// is removed rather than allowed to stall room delivery.
func TestSlowClientDropped(t *testing.T) {
	hub := startTestHub(t)
	slow := newTestClient(t, hub)
	healthy := newTestClient(t, hub)
	hub.Subscribe(slow.id, "lobby")
	hub.Subscribe(healthy.id, "lobby")

	// Saturate the slow client's buffer so the next send cannot proceed.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("backlog")
	}

	hub.EmitToRoom("lobby", EventMessage, NewMessage(AdminName, "hi"))

	recvEvent(t, healthy, EventMessage, nil)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	newTestClient(t, hub)

	if err := hub.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}
