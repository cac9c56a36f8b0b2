package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var errNotJoined = errors.New("connection has not joined its user room")

// Client is one websocket connection of an authenticated user.
type Client struct {
	conn     *websocket.Conn
	cs       *ChatServer
	direct   *DirectMessages
	channels *ChannelMessages
	log      *log.Logger
	userId   string
	send     chan *ServerMessage
	// rooms is owned by the ChatServer run loop
	rooms    map[types.RoomId]struct{}
	joined   bool
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(userId string, conn *websocket.Conn, cs *ChatServer, dm *DirectMessages, cm *ChannelMessages, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		cs:       cs,
		direct:   dm,
		channels: cm,
		log:      l,
		userId:   userId,
		send:     make(chan *ServerMessage, 256),
		rooms:    make(map[types.RoomId]struct{}),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()

		c.queueMessage(c.dispatch(&msg))
	}
}

// dispatch runs one inbound command and returns the response for it.
func (c *Client) dispatch(msg *ClientMessage) *ServerMessage {
	switch {
	case msg.Join != nil:
		return c.join(msg)
	case msg.JoinChannel != nil:
		return c.joinChannel(msg)
	case msg.LeaveChannel != nil:
		c.cs.Leave(c, types.ChannelRoom(msg.LeaveChannel.ChannelId))
		return NoErrOK(msg.Id, nil)
	case msg.DirectMessage != nil:
		return c.sendDirect(msg)
	case msg.ChannelMessage != nil:
		return c.sendToChannel(msg)
	default:
		return ErrInvalidMessage(msg.Id)
	}
}

// join subscribes the connection to the room of the authenticated user.
func (c *Client) join(msg *ClientMessage) *ServerMessage {
	if msg.Join.UserId == "" {
		return ErrResponse(msg.Id, types.ErrBadRequest)
	}
	if msg.Join.UserId != c.userId {
		c.log.Printf("user %q tried to join the room of %q", c.userId, msg.Join.UserId)
		return ErrResponse(msg.Id, types.ErrForbidden)
	}

	if !c.cs.Join(c, types.UserRoom(c.userId)) && !c.joined {
		return ErrServiceUnavailable(msg.Id)
	}
	c.joined = true

	return NoErrOK(msg.Id, map[string]any{"room": types.UserRoom(c.userId).String()})
}

func (c *Client) joinChannel(msg *ClientMessage) *ServerMessage {
	if !c.joined {
		c.log.Printf("join_channel from %q: %v", c.userId, errNotJoined)
		return ErrResponse(msg.Id, types.ErrForbidden)
	}

	channelId := msg.JoinChannel.ChannelId
	if err := c.channels.CanJoin(channelId, c.userId); err != nil {
		return ErrResponse(msg.Id, err)
	}

	room := types.ChannelRoom(channelId)
	c.cs.Join(c, room)

	return NoErrOK(msg.Id, map[string]any{"room": room.String()})
}

func (c *Client) sendDirect(msg *ClientMessage) *ServerMessage {
	req := msg.DirectMessage
	sent, err := c.direct.Send(DirectSendRequest{
		SenderId:      c.userId,
		ReceiverId:    req.ReceiverId,
		Body:          req.Message,
		Kind:          req.Type,
		MessageId:     req.MessageId,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		return ErrResponse(msg.Id, err)
	}

	return NoErrOK(msg.Id, map[string]any{"message_id": sent.Id})
}

func (c *Client) sendToChannel(msg *ClientMessage) *ServerMessage {
	req := msg.ChannelMessage
	sent, err := c.channels.Send(ChannelSendRequest{
		ChannelId:     req.ChannelId,
		SenderId:      c.userId,
		Body:          req.Message,
		Kind:          req.Type,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		return ErrResponse(msg.Id, err)
	}

	return NoErrOK(msg.Id, map[string]any{"message_id": sent.Id})
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.cs.deRegisterClient(c)
	c.stopClient()
}
