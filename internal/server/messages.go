package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a command sent over the websocket. Exactly one of the
// command fields is expected to be set.
type ClientMessage struct {
	BaseMessage
	Join           *Join          `json:"join,omitempty"`
	JoinChannel    *ChannelRef    `json:"join_channel,omitempty"`
	LeaveChannel   *ChannelRef    `json:"leave_channel,omitempty"`
	DirectMessage  *SendDirect    `json:"direct_message,omitempty"`
	ChannelMessage *SendToChannel `json:"channel_message,omitempty"`
	client         *Client        `json:"-"`
}

type Join struct {
	UserId string `json:"user_id"`
}

// SendDirect sends a direct message. File messages name the message already
// stored by the upload endpoint in MessageId.
type SendDirect struct {
	ReceiverId    string            `json:"receiver_id"`
	Message       string            `json:"message"`
	Type          types.MessageKind `json:"type"`
	MessageId     string            `json:"message_id,omitempty"`
	AttachmentRef string            `json:"attachment_ref,omitempty"`
}

type SendToChannel struct {
	ChannelId     string            `json:"channel_id"`
	Message       string            `json:"message"`
	Type          types.MessageKind `json:"type"`
	AttachmentRef string            `json:"attachment_ref,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Event    *Event    `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Event is a broadcast delivered to every connection in Room.
type Event struct {
	Name string `json:"name"`
	Room string `json:"room"`
	Data any    `json:"data"`
}

func NewEvent(room types.RoomId, name string, payload any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event: &Event{
			Name: name,
			Room: room.String(),
			Data: payload,
		},
	}
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, "invalid message format")
}

// ErrResponse answers command id with the status matching err.
func ErrResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		return errResponse(id, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, types.ErrForbidden):
		return errResponse(id, http.StatusForbidden, "forbidden")
	case errors.Is(err, types.ErrBadRequest):
		return errResponse(id, http.StatusBadRequest, "bad request")
	case errors.Is(err, types.ErrNotFound):
		return errResponse(id, http.StatusNotFound, "not found")
	default:
		return errResponse(id, http.StatusInternalServerError, "internal server error")
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
