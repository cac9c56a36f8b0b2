package database

import (
	"path"
	"strings"
	"time"

	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type User struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateChannelParams struct {
	WorkspaceId string
	Name        string
	Description string
	CreatedBy   string
}

type AppendDirectMessageParams struct {
	SenderId      string
	ReceiverId    string
	Body          string
	AttachmentRef string
	Kind          types.MessageKind
}

type AppendChannelMessageParams struct {
	ChannelId     string
	SenderId      string
	Body          string
	AttachmentRef string
	Kind          types.MessageKind
}

// UpsertConversationParams carries the latest message for a participant pair.
// At and Seq order competing writes: the summary only moves forward.
type UpsertConversationParams struct {
	Participants [2]string
	Preview      string
	At           time.Time
	Seq          int64
}

// SummaryFor builds the conversation upsert for a stored direct message.
func SummaryFor(msg types.DirectMessage) UpsertConversationParams {
	return UpsertConversationParams{
		Participants: types.Pair(msg.SenderId, msg.ReceiverId),
		Preview:      Preview(msg),
		At:           msg.CreatedAt,
		Seq:          msg.Seq,
	}
}

// Preview is the body for text messages and the attachment file name for files.
func Preview(msg types.DirectMessage) string {
	if msg.Kind == types.KindFile {
		ref := msg.AttachmentRef
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		if name := path.Base(ref); name != "" && name != "." && name != "/" {
			return name
		}
		return "[file]"
	}
	return msg.Body
}

func now() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}
