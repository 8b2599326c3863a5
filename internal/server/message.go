// Package server builds the timestamped payloads broadcast to chat clients.
package server

import (
	"fmt"
	"time"
)

// AdminName is the reserved sender name for server-generated notices such as
// welcome and departure messages.
const AdminName = "ADMIN"

// Message is a text chat payload. CreatedAt is assigned by the server at
// construction time, in Unix milliseconds, so every recipient (including the
// sender) renders the same timestamp.
type Message struct {
	Username  string `json:"username"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

// LocationMessage is a shared-location payload carrying a map link.
type LocationMessage struct {
	Username  string `json:"username"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomData is the roster payload sent to a room whenever its membership
// changes. Users are listed in join order.
type RoomData struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// NewMessage builds a text message stamped with the current server time.
func NewMessage(username, body string) Message {
	return Message{
		Username:  username,
		Body:      body,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewLocationMessage builds a location message linking to the given
// coordinates on Google Maps.
func NewLocationMessage(username string, lat, lng float64) LocationMessage {
	return LocationMessage{
		Username:  username,
		URL:       fmt.Sprintf("https://google.com/maps?q=%v,%v", lat, lng),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewRoomData builds a roster payload for room from registry members.
func NewRoomData(room string, members []User) RoomData {
	users := make([]string, len(members))
	for i, m := range members {
		users[i] = m.Username
	}
	return RoomData{Room: room, Users: users}
}
