// Package server exposes HTTP handlers, including WebSocket upgrades, health
// and stats endpoints, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server owns the long-lived chat relay state: the hub, the presence
// registry, and the content filter. All handlers hang off it so no part of
// the system depends on package-level mutable state.
type Server struct {
	cfg      Config
	hub      *Hub
	registry *Registry
	filter   Filter
	upgrader websocket.Upgrader
}

// NewServer builds a Server from the given configuration, using the default
// profanity filter. Passing nil uses default configuration.
func NewServer(cfg *Config) *Server {
	return NewServerWithFilter(cfg, NewProfanityFilter())
}

// NewServerWithFilter builds a Server with a custom content filter.
func NewServerWithFilter(cfg *Config, filter Filter) *Server {
	resolved := defaultConfig()
	if cfg != nil {
		resolved = sanitizeConfig(*cfg)
	}

	origins := newOriginPolicy(resolved.AllowedOrigins)
	return &Server{
		cfg:      resolved,
		hub:      NewHub(),
		registry: NewRegistry(),
		filter:   filter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Config returns the sanitized configuration the server is running with.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Hub returns the server's broadcast hub for lifecycle coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the server's presence registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// StartHub starts the hub's event loop in its own goroutine. It must be
// called before the HTTP server starts accepting connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// handleWebSocket upgrades the HTTP connection, attaches a fresh session to
// the client, and hands it to the hub, which launches the pump goroutines.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn, s.hub, r.RemoteAddr, s.cfg)
	client.session = newSession(client.id, s.registry, s.hub, s.filter)
	s.hub.register <- client
}

// handleHealth provides a simple health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// handleStats reports a point-in-time snapshot of connection and room counts.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := struct {
		Connections int `json:"connections"`
		Rooms       int `json:"rooms"`
	}{
		Connections: s.hub.ClientCount(),
		Rooms:       len(s.registry.Rooms()),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("Error writing stats response: %v", err)
	}
}

// handleTestPage serves an HTML page for exercising the chat protocol by
// hand: join a room, send messages and locations, watch the roster update.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; display: flex; gap: 20px; }
        #main { flex: 1; }
        #sidebar { width: 200px; border: 1px solid #ccc; padding: 10px; background-color: #f4f4f4; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 5px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #999; }
        .admin { color: gray; font-style: italic; }
        .error { color: #721c24; }
    </style>
</head>
<body>
    <div id="main">
        <h1>Chat Relay Test</h1>
        <div>
            <input type="text" id="username" placeholder="Username">
            <input type="text" id="room" placeholder="Room">
            <button id="joinButton" onclick="join()">Join</button>
        </div>
        <div id="messages"></div>
        <div>
            <input type="text" id="messageInput" placeholder="Type a message..." disabled>
            <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
            <button id="locationButton" onclick="sendLocation()" disabled>Share location</button>
        </div>
    </div>
    <div id="sidebar">
        <h3 id="roomName">Room</h3>
        <ul id="users"></ul>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');

        function addLine(text, cls) {
            const el = document.createElement('div');
            if (cls) el.className = cls;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function setJoined(joined) {
            document.getElementById('messageInput').disabled = !joined;
            document.getElementById('sendButton').disabled = !joined;
            document.getElementById('locationButton').disabled = !joined;
            document.getElementById('joinButton').disabled = joined;
        }

        function send(event, data) {
            ws.send(JSON.stringify({ event: event, data: data }));
        }

        function join() {
            const username = document.getElementById('username').value;
            const room = document.getElementById('room').value;
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => send('join', { username: username, room: room });
            ws.onclose = () => { setJoined(false); addLine('Disconnected', 'admin'); };
            ws.onmessage = (raw) => {
                const env = JSON.parse(raw.data);
                const data = env.data;
                switch (env.event) {
                    case 'ack':
                        if (data.error) addLine(data.error, 'error');
                        else if (data.for === 'join') setJoined(true);
                        break;
                    case 'message':
                        addLine(data.username + ': ' + data.body,
                            data.username === 'ADMIN' ? 'admin' : '');
                        break;
                    case 'locationMessage':
                        addLine(data.username + ' shared a location: ' + data.url);
                        break;
                    case 'roomData':
                        document.getElementById('roomName').textContent = data.room;
                        const list = document.getElementById('users');
                        list.innerHTML = '';
                        data.users.forEach((u) => {
                            const li = document.createElement('li');
                            li.textContent = u;
                            list.appendChild(li);
                        });
                        break;
                }
            };
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value) {
                send('sendMessage', { text: input.value });
                input.value = '';
            }
        }

        function sendLocation() {
            navigator.geolocation.getCurrentPosition((pos) => {
                send('sendLocation', { lat: pos.coords.latitude, lng: pos.coords.longitude });
            });
        }

        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
