// Package server coordinates client registration, room subscriptions, and
// room-scoped event broadcast for the chat relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// delivery is one outbound dispatch. When target is set the payload goes to a
// single connection; otherwise it goes to every subscriber of room except the
// excluded connection, if any.
type delivery struct {
	target  string
	room    string
	exclude string
	payload []byte
}

// Hub routes events to connections. A connection subscribes to at most one
// room at a time; all emits funnel through a single dispatch loop, so events
// within one room are delivered in the order they were submitted. Delivery is
// best-effort: a slow or dead connection is dropped rather than allowed to
// stall the rest of the room.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]struct{}
	register   chan *Client
	unregister chan *Client
	deliveries chan delivery
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage connections. Call Run in its own
// goroutine before registering clients.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan delivery, 256),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's main event loop, handling client registration,
// unregistration, and event dispatch. It runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case d := <-h.deliveries:
			h.dispatch(d)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, clientCount)

	// Tests exercise the hub with connection-less clients.
	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	h.dropSubscriptionLocked(client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	log.Printf("Client %s disconnected from %s. Total clients: %d", client.id, client.addr, clientCount)
}

// Subscribe attaches the connection to the broadcast channel for room. A
// connection belongs to at most one room, so any previous subscription is
// dropped first; resubscribing to the same room is a no-op.
func (h *Hub) Subscribe(connID, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.dropSubscriptionLocked(connID)
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][connID] = struct{}{}
}

// Unsubscribe detaches the connection from room. No-op if not subscribed.
func (h *Hub) Unsubscribe(connID, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) dropSubscriptionLocked(connID string) {
	for room, members := range h.rooms {
		if _, ok := members[connID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// EmitTo delivers an event to a single connection.
func (h *Hub) EmitTo(connID, event string, payload any) {
	h.emit(delivery{target: connID}, event, payload)
}

// EmitToRoom delivers an event to every subscriber of room.
func (h *Hub) EmitToRoom(room, event string, payload any) {
	h.emit(delivery{room: room}, event, payload)
}

// EmitToRoomExcluding delivers an event to every subscriber of room except
// connID.
func (h *Hub) EmitToRoomExcluding(connID, room, event string, payload any) {
	h.emit(delivery{room: room, exclude: connID}, event, payload)
}

func (h *Hub) emit(d delivery, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	d.payload = data

	select {
	case h.deliveries <- d:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dispatch(d delivery) {
	if d.target != "" {
		h.mutex.RLock()
		client := h.clients[d.target]
		h.mutex.RUnlock()
		if client == nil {
			return
		}
		if !h.safeSend(client, d.payload) {
			h.removeFailedClients([]*Client{client})
		}
		return
	}

	clients := h.roomSnapshot(d.room, d.exclude)
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, d.payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// roomSnapshot returns the current subscribers of room, minus the excluded
// connection.
func (h *Hub) roomSnapshot(room, exclude string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := h.rooms[room]
	clients := make([]*Client, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if client, ok := h.clients[connID]; ok {
			clients = append(clients, client)
		}
	}
	return clients
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send attempt so unregistration cannot
	// close the channel out from under us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			h.dropSubscriptionLocked(client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s removed due to full send buffer", client.id)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// ClientCount returns the number of currently registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection %s: %v", client.id, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
