package server

import (
	"encoding/json"
	"testing"
	"time"
)

// startTestHub runs a hub for the duration of the test.
func startTestHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() {
		if err := hub.Shutdown(time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
	})
	return hub
}

// newTestClient registers a connection-less client with the hub and waits for
// the registration to take effect.
func newTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()

	client := newClient(nil, hub, "test", defaultConfig())
	before := hub.ClientCount()
	hub.register <- client

	waitFor(t, func() bool { return hub.ClientCount() > before })
	return client
}

// recvEvent reads the next event delivered to the client and decodes its
// payload into out (when out is non-nil), failing the test on timeout or on
// an unexpected event name.
func recvEvent(t *testing.T, client *Client, event string, out any) {
	t.Helper()

	select {
	case raw := <-client.send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("invalid envelope: %v", err)
		}
		if env.Event != event {
			t.Fatalf("expected event %q, got %q", event, env.Event)
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("invalid %s payload: %v", event, err)
			}
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for %s event", event)
	}
}

// expectNoEvent asserts the client receives nothing within the grace window.
func expectNoEvent(t *testing.T, client *Client) {
	t.Helper()

	select {
	case raw := <-client.send:
		t.Fatalf("expected no event, got %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
