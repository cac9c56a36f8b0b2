package server

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-workspace-chat/internal/stats"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

// ChatServer is the realtime hub. Room membership is only mutated by the
// Run loop, so every join, leave and broadcast is applied in the order the
// loop receives it.
type ChatServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	rooms          map[types.RoomId]*Room
	roomsLock      sync.RWMutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	joinChan       chan *roomReq
	leaveChan      chan *roomReq
	broadcastChan  chan *broadcastReq
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

type roomReq struct {
	room   types.RoomId
	client *Client
	result chan bool
}

// broadcastReq either delivers msg to room or, when evictUser is set, drops
// that user's connections from room. Both share one queue so an eviction
// never overtakes a broadcast queued before it.
type broadcastReq struct {
	room      types.RoomId
	msg       *ServerMessage
	evictUser string
}

func NewChatServer(logger *log.Logger, st stats.StatsProvider) *ChatServer {
	st.RegisterMetric(stats.NumActiveClients)
	st.RegisterMetric(stats.NumBroadcasts)

	return &ChatServer{
		log:            logger,
		stats:          st,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[types.RoomId]*Room),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		joinChan:       make(chan *roomReq),
		leaveChan:      make(chan *roomReq),
		broadcastChan:  make(chan *broadcastReq, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection for user %q", client.userId)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection for user %q", client.userId)
			cs.removeClient(client)
		case req := <-cs.joinChan:
			req.result <- cs.joinRoom(req.room, req.client)
		case req := <-cs.leaveChan:
			req.result <- cs.leaveRoom(req.room, req.client)
		case req := <-cs.broadcastChan:
			if req.evictUser != "" {
				cs.evict(req.room, req.evictUser)
			} else {
				cs.deliver(req)
			}
		case <-cs.stop:
			cs.log.Println("shutting down chat server")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		return
	}
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

// removeClient drops c from the registry and from every room it joined.
func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	_, ok := cs.clients[c]
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	if !ok {
		return
	}
	cs.stats.Decr(stats.NumActiveClients)

	for id := range c.rooms {
		cs.leaveRoom(id, c)
	}
}

func (cs *ChatServer) joinRoom(id types.RoomId, c *Client) bool {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[id]
	if !ok {
		r = newRoom(id)
		cs.rooms[id] = r
	}

	if !r.addClient(c) {
		return false
	}
	c.rooms[id] = struct{}{}

	return true
}

func (cs *ChatServer) leaveRoom(id types.RoomId, c *Client) bool {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[id]
	if !ok {
		return false
	}

	removed := r.removeClient(c)
	delete(c.rooms, id)
	if r.isEmpty() {
		delete(cs.rooms, id)
	}

	return removed
}

func (cs *ChatServer) evict(id types.RoomId, userId string) {
	cs.roomsLock.RLock()
	r, ok := cs.rooms[id]
	var clients []*Client
	if ok {
		clients = r.clientsForUser(userId)
	}
	cs.roomsLock.RUnlock()

	for _, c := range clients {
		cs.leaveRoom(id, c)
	}
	if len(clients) > 0 {
		cs.log.Printf("evicted %d connection(s) of user %q from %s", len(clients), userId, id)
	}
}

func (cs *ChatServer) deliver(req *broadcastReq) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	cs.stats.Incr(stats.NumBroadcasts)

	r, ok := cs.rooms[req.room]
	if !ok {
		// nobody is listening
		return
	}
	r.broadcast(req.msg)
}

// RegisterClient adds a new connection to the registry. It returns false
// once the server has shut down.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// Join subscribes c to a room and reports whether it was newly added.
func (cs *ChatServer) Join(c *Client, room types.RoomId) bool {
	return cs.roomOp(cs.joinChan, c, room)
}

// Leave unsubscribes c from a room and reports whether it was a member.
func (cs *ChatServer) Leave(c *Client, room types.RoomId) bool {
	return cs.roomOp(cs.leaveChan, c, room)
}

func (cs *ChatServer) roomOp(ch chan *roomReq, c *Client, room types.RoomId) bool {
	req := &roomReq{room: room, client: c, result: make(chan bool, 1)}
	select {
	case ch <- req:
	case <-cs.done:
		return false
	}

	select {
	case ok := <-req.result:
		return ok
	case <-cs.done:
		return false
	}
}

// Broadcast queues an event for every connection currently in room. Delivery
// is best effort: a room without connections drops the event.
func (cs *ChatServer) Broadcast(room types.RoomId, event string, payload any) {
	select {
	case cs.broadcastChan <- &broadcastReq{room: room, msg: NewEvent(room, event, payload)}:
	case <-cs.done:
	}
}

func (cs *ChatServer) LeaveRoomForUser(room types.RoomId, userId string) {
	select {
	case cs.broadcastChan <- &broadcastReq{room: room, evictUser: userId}:
	case <-cs.done:
	}
}

// RoomSize returns the number of connections in room.
func (cs *ChatServer) RoomSize(room types.RoomId) int {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	if r, ok := cs.rooms[room]; ok {
		return len(r.clients)
	}
	return 0
}

// Shutdown stops the run loop and closes every connection. It returns the
// context's error if the loop does not exit in time.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.stopOnce.Do(func() { close(cs.stop) })

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
