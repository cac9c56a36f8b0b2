package server

import (
	"fmt"
	"log"

	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/stats"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

// DirectSendRequest is a direct message on its way into the pipeline.
type DirectSendRequest struct {
	SenderId   string
	ReceiverId string
	Body       string
	Kind       types.MessageKind
	// MessageId and AttachmentRef identify a file message that was stored
	// before the send. Only used when Kind is file.
	MessageId     string
	AttachmentRef string
}

// DirectMessages persists direct messages, keeps the conversation summary
// current and fans new messages out to both participants.
type DirectMessages struct {
	log   *log.Logger
	store database.MessageStore
	hub   Broadcaster
	stats stats.StatsProvider
	locks *keyedMutex
}

func NewDirectMessages(l *log.Logger, store database.MessageStore, hub Broadcaster, st stats.StatsProvider) *DirectMessages {
	return &DirectMessages{
		log:   l,
		store: store,
		hub:   hub,
		stats: st,
		locks: newKeyedMutex(),
	}
}

func validPair(a, b string) error {
	if a == "" || b == "" {
		return fmt.Errorf("missing participant: %w", types.ErrBadRequest)
	}
	if a == b {
		return fmt.Errorf("participants must differ: %w", types.ErrBadRequest)
	}
	return nil
}

func pairKey(a, b string) string {
	p := types.Pair(a, b)
	return p[0] + "\x00" + p[1]
}

// Send runs a direct message through persistence, the summary upsert and
// the broadcast, in that order. Nothing is broadcast if a step fails.
func (dm *DirectMessages) Send(req DirectSendRequest) (types.DirectMessage, error) {
	if err := validPair(req.SenderId, req.ReceiverId); err != nil {
		return types.DirectMessage{}, err
	}

	if req.Kind == "" {
		req.Kind = types.KindText
	}
	if !req.Kind.Valid() {
		return types.DirectMessage{}, fmt.Errorf("invalid message kind %q: %w", req.Kind, types.ErrBadRequest)
	}
	if req.Kind == types.KindFile && req.MessageId == "" {
		return types.DirectMessage{}, fmt.Errorf("file message without message id: %w", types.ErrBadRequest)
	}

	unlock := dm.locks.Lock(pairKey(req.SenderId, req.ReceiverId))
	defer unlock()

	var (
		msg types.DirectMessage
		err error
	)
	if req.Kind == types.KindFile {
		msg, err = dm.storedFile(req)
	} else {
		msg, err = dm.store.AppendDirectMessage(database.AppendDirectMessageParams{
			SenderId:   req.SenderId,
			ReceiverId: req.ReceiverId,
			Body:       req.Body,
			Kind:       types.KindText,
		})
	}
	if err != nil {
		dm.log.Printf("send direct message: %v", err)
		return types.DirectMessage{}, err
	}

	if _, err := dm.store.UpsertConversationSummary(database.SummaryFor(msg)); err != nil {
		dm.log.Printf("upsert conversation summary: %v", err)
		return types.DirectMessage{}, err
	}

	dm.stats.Incr(stats.NumDirectMessages)
	dm.hub.Broadcast(types.UserRoom(msg.SenderId), EventNewDirectMessage, msg)
	dm.hub.Broadcast(types.UserRoom(msg.ReceiverId), EventNewDirectMessage, msg)

	return msg, nil
}

// storedFile loads the file message created by Upload and checks it belongs
// to the pair named in req.
func (dm *DirectMessages) storedFile(req DirectSendRequest) (types.DirectMessage, error) {
	msg, err := dm.store.GetDirectMessage(req.MessageId)
	if err != nil {
		return types.DirectMessage{}, err
	}

	if msg.Kind != types.KindFile {
		return types.DirectMessage{}, fmt.Errorf("message %s is not a file message: %w", msg.Id, types.ErrBadRequest)
	}
	if msg.SenderId != req.SenderId || msg.ReceiverId != req.ReceiverId {
		return types.DirectMessage{}, fmt.Errorf("message %s belongs to another conversation: %w", msg.Id, types.ErrBadRequest)
	}
	if req.AttachmentRef != "" && req.AttachmentRef != msg.AttachmentRef {
		return types.DirectMessage{}, fmt.Errorf("attachment does not match message %s: %w", msg.Id, types.ErrBadRequest)
	}

	return msg, nil
}

// Upload records a file message whose attachment is already in storage. The
// message is announced by a later Send naming its id.
func (dm *DirectMessages) Upload(senderId, receiverId, attachmentRef string) (types.DirectMessage, error) {
	if err := validPair(senderId, receiverId); err != nil {
		return types.DirectMessage{}, err
	}
	if attachmentRef == "" {
		return types.DirectMessage{}, fmt.Errorf("missing attachment: %w", types.ErrBadRequest)
	}

	msg, err := dm.store.AppendDirectMessage(database.AppendDirectMessageParams{
		SenderId:      senderId,
		ReceiverId:    receiverId,
		AttachmentRef: attachmentRef,
		Kind:          types.KindFile,
	})
	if err != nil {
		dm.log.Printf("upload direct message: %v", err)
		return types.DirectMessage{}, err
	}

	return msg, nil
}

func (dm *DirectMessages) History(userA, userB string) ([]types.DirectMessage, error) {
	if err := validPair(userA, userB); err != nil {
		return nil, err
	}
	return dm.store.ListDirectMessages(userA, userB)
}

// MarkRead flags every unread message from senderId to receiverId as read.
// No event is emitted.
func (dm *DirectMessages) MarkRead(senderId, receiverId string) (int64, error) {
	if err := validPair(senderId, receiverId); err != nil {
		return 0, err
	}
	return dm.store.MarkDirectMessagesRead(senderId, receiverId)
}

func (dm *DirectMessages) OpenConversation(userA, userB string) (types.Conversation, error) {
	if err := validPair(userA, userB); err != nil {
		return types.Conversation{}, err
	}
	return dm.store.OpenConversation(userA, userB)
}

func (dm *DirectMessages) Conversations(userId string) ([]types.Conversation, error) {
	if userId == "" {
		return nil, fmt.Errorf("missing user id: %w", types.ErrBadRequest)
	}
	return dm.store.ListConversations(userId)
}
