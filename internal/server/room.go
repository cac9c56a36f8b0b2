package server

import (
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

// Room is the set of connections that receive broadcasts for one RoomId.
// A room only exists while it has at least one connection. Rooms are owned
// by the ChatServer run loop and never touched from other goroutines
// without holding the server's roomsLock.
type Room struct {
	id      types.RoomId
	clients map[*Client]struct{}
	// userMap indexes connections by the user that opened them
	userMap map[string]map[*Client]struct{}
}

func newRoom(id types.RoomId) *Room {
	return &Room{
		id:      id,
		clients: make(map[*Client]struct{}),
		userMap: make(map[string]map[*Client]struct{}),
	}
}

func (r *Room) addClient(c *Client) bool {
	if _, ok := r.clients[c]; ok {
		return false
	}

	r.clients[c] = struct{}{}
	if r.userMap[c.userId] == nil {
		r.userMap[c.userId] = make(map[*Client]struct{})
	}
	r.userMap[c.userId][c] = struct{}{}

	return true
}

func (r *Room) removeClient(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	if userClients, ok := r.userMap[c.userId]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.userId)
		}
	}

	return true
}

// clientsForUser returns the room's connections opened by userId.
func (r *Room) clientsForUser(userId string) []*Client {
	clients := make([]*Client, 0, len(r.userMap[userId]))
	for c := range r.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

func (r *Room) isEmpty() bool {
	return len(r.clients) == 0
}

func (r *Room) broadcast(msg *ServerMessage) int {
	delivered := 0
	for client := range r.clients {
		if client.queueMessage(msg) {
			delivered++
		}
	}
	return delivered
}
