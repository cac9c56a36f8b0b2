package types

import (
	"time"
)

type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

func (k MessageKind) Valid() bool {
	return k == KindText || k == KindFile
}

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type DirectMessage struct {
	Id            string      `json:"id"`
	SenderId      string      `json:"sender_id"`
	ReceiverId    string      `json:"receiver_id"`
	Body          string      `json:"body"`
	AttachmentRef string      `json:"attachment_ref,omitempty"`
	Kind          MessageKind `json:"kind"`
	Read          bool        `json:"read"`
	CreatedAt     time.Time   `json:"created_at"`
	// Seq is the store's insertion order, used to break createdAt ties.
	Seq int64 `json:"-"`
}

// Conversation is the summary of the latest exchange between two users.
// ParticipantIds is always stored in ascending order.
type Conversation struct {
	Id                 string    `json:"id"`
	ParticipantIds     [2]string `json:"participant_ids"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Pair returns the unordered participant pair in canonical order.
func Pair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

type Channel struct {
	Id          string    `json:"id"`
	WorkspaceId string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type Reaction struct {
	UserId string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

type ChannelMessage struct {
	Id            string      `json:"id"`
	ChannelId     string      `json:"channel_id"`
	SenderId      string      `json:"sender_id"`
	SenderName    string      `json:"sender_name,omitempty"`
	Body          string      `json:"body"`
	AttachmentRef string      `json:"attachment_ref,omitempty"`
	Kind          MessageKind `json:"kind"`
	Reactions     []Reaction  `json:"reactions"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ReactionResult reports the state transition applied by a reaction write.
type ReactionResult int

const (
	ReactionNoop ReactionResult = iota
	ReactionAdded
	ReactionReplaced
	ReactionRemoved
)

func (r ReactionResult) String() string {
	switch r {
	case ReactionAdded:
		return "added"
	case ReactionReplaced:
		return "replaced"
	case ReactionRemoved:
		return "removed"
	default:
		return "noop"
	}
}
