package server

import (
	"fmt"
	"log"

	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/stats"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type ChannelSendRequest struct {
	ChannelId     string
	SenderId      string
	Body          string
	Kind          types.MessageKind
	AttachmentRef string
}

// ChannelMessages handles channel sends, reactions and membership changes.
// Work on one channel is serialized so broadcasts leave in the order the
// store accepted the writes.
type ChannelMessages struct {
	log     *log.Logger
	store   database.MessageStore
	members database.MembershipOracle
	dir     database.Directory
	hub     Broadcaster
	stats   stats.StatsProvider
	locks   *keyedMutex
}

func NewChannelMessages(l *log.Logger, store database.MessageStore, members database.MembershipOracle,
	dir database.Directory, hub Broadcaster, st stats.StatsProvider) *ChannelMessages {
	return &ChannelMessages{
		log:     l,
		store:   store,
		members: members,
		dir:     dir,
		hub:     hub,
		stats:   st,
		locks:   newKeyedMutex(),
	}
}

func (cm *ChannelMessages) requireMember(channelId, userId string) error {
	ok, err := cm.members.IsChannelMember(channelId, userId)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s is not a member of channel %s: %w", userId, channelId, types.ErrForbidden)
	}
	return nil
}

func (cm *ChannelMessages) Send(req ChannelSendRequest) (types.ChannelMessage, error) {
	if req.ChannelId == "" || req.SenderId == "" {
		return types.ChannelMessage{}, fmt.Errorf("missing channel or sender: %w", types.ErrBadRequest)
	}

	if req.Kind == "" {
		req.Kind = types.KindText
	}
	if !req.Kind.Valid() {
		return types.ChannelMessage{}, fmt.Errorf("invalid message kind %q: %w", req.Kind, types.ErrBadRequest)
	}
	if req.Kind == types.KindFile && req.AttachmentRef == "" {
		return types.ChannelMessage{}, fmt.Errorf("file message without attachment: %w", types.ErrBadRequest)
	}
	if req.Kind == types.KindText {
		req.AttachmentRef = ""
	}

	if err := cm.requireMember(req.ChannelId, req.SenderId); err != nil {
		return types.ChannelMessage{}, err
	}

	unlock := cm.locks.Lock(req.ChannelId)
	defer unlock()

	msg, err := cm.store.AppendChannelMessage(database.AppendChannelMessageParams{
		ChannelId:     req.ChannelId,
		SenderId:      req.SenderId,
		Body:          req.Body,
		AttachmentRef: req.AttachmentRef,
		Kind:          req.Kind,
	})
	if err != nil {
		cm.log.Printf("append channel message: %v", err)
		return types.ChannelMessage{}, err
	}

	if msg.SenderName == "" {
		name, err := cm.dir.DisplayName(msg.SenderId)
		if err != nil {
			// the message is stored; deliver it without display fields
			cm.log.Printf("display name for %s: %v", msg.SenderId, err)
		}
		msg.SenderName = name
	}

	cm.stats.Incr(stats.NumChannelMessages)
	cm.hub.Broadcast(types.ChannelRoom(msg.ChannelId), EventNewChannelMessage, msg)

	return msg, nil
}

func (cm *ChannelMessages) History(channelId, userId string) ([]types.ChannelMessage, error) {
	if channelId == "" || userId == "" {
		return nil, fmt.Errorf("missing channel or user: %w", types.ErrBadRequest)
	}
	if err := cm.requireMember(channelId, userId); err != nil {
		return nil, err
	}
	return cm.store.ListChannelMessages(channelId)
}

// ToggleReaction applies emoji from userId to a message. Repeating the
// current emoji removes it, a different emoji replaces it.
func (cm *ChannelMessages) ToggleReaction(messageId, userId, emoji string) (types.ReactionResult, error) {
	if messageId == "" || userId == "" || emoji == "" {
		return types.ReactionNoop, fmt.Errorf("missing message, user or emoji: %w", types.ErrBadRequest)
	}

	msg, err := cm.store.GetChannelMessage(messageId)
	if err != nil {
		return types.ReactionNoop, err
	}
	if err := cm.requireMember(msg.ChannelId, userId); err != nil {
		return types.ReactionNoop, err
	}

	unlock := cm.locks.Lock(msg.ChannelId)
	defer unlock()

	// reload under the lock so the current reaction is not stale
	msg, err = cm.store.GetChannelMessage(messageId)
	if err != nil {
		return types.ReactionNoop, err
	}

	var current string
	for _, r := range msg.Reactions {
		if r.UserId == userId {
			current = r.Emoji
			break
		}
	}

	if current == emoji {
		res, err := cm.store.RemoveReaction(messageId, userId)
		if err != nil {
			cm.log.Printf("remove reaction: %v", err)
			return types.ReactionNoop, err
		}
		if res == types.ReactionRemoved {
			cm.broadcastRemoved(msg, userId)
		}
		return res, nil
	}

	res, err := cm.store.UpsertReaction(messageId, userId, emoji)
	if err != nil {
		cm.log.Printf("upsert reaction: %v", err)
		return types.ReactionNoop, err
	}

	cm.stats.Incr(stats.NumReactions)
	cm.hub.Broadcast(types.ChannelRoom(msg.ChannelId), EventChannelReactionUpdated, ReactionUpdated{
		MessageId: messageId,
		UserId:    userId,
		Emoji:     emoji,
		ChannelId: msg.ChannelId,
	})

	return res, nil
}

// RemoveReaction drops userId's reaction from a message, if any.
func (cm *ChannelMessages) RemoveReaction(messageId, userId string) (types.ReactionResult, error) {
	if messageId == "" || userId == "" {
		return types.ReactionNoop, fmt.Errorf("missing message or user: %w", types.ErrBadRequest)
	}

	msg, err := cm.store.GetChannelMessage(messageId)
	if err != nil {
		return types.ReactionNoop, err
	}
	if err := cm.requireMember(msg.ChannelId, userId); err != nil {
		return types.ReactionNoop, err
	}

	unlock := cm.locks.Lock(msg.ChannelId)
	defer unlock()

	res, err := cm.store.RemoveReaction(messageId, userId)
	if err != nil {
		cm.log.Printf("remove reaction: %v", err)
		return types.ReactionNoop, err
	}
	if res == types.ReactionRemoved {
		cm.broadcastRemoved(msg, userId)
	}

	return res, nil
}

// broadcastRemoved always takes the channel id from the stored message.
func (cm *ChannelMessages) broadcastRemoved(msg types.ChannelMessage, userId string) {
	cm.hub.Broadcast(types.ChannelRoom(msg.ChannelId), EventChannelReactionRemoved, ReactionRemoved{
		MessageId: msg.Id,
		UserId:    userId,
		ChannelId: msg.ChannelId,
	})
}

// CanJoin reports whether userId may subscribe to the channel's room.
func (cm *ChannelMessages) CanJoin(channelId, userId string) error {
	if channelId == "" || userId == "" {
		return fmt.Errorf("missing channel or user: %w", types.ErrBadRequest)
	}
	if _, err := cm.members.GetChannel(channelId); err != nil {
		return err
	}
	return cm.requireMember(channelId, userId)
}

// AddMember lets the channel creator add userId.
func (cm *ChannelMessages) AddMember(channelId, actorId, userId string) error {
	if channelId == "" || actorId == "" || userId == "" {
		return fmt.Errorf("missing channel or user: %w", types.ErrBadRequest)
	}

	ch, err := cm.members.GetChannel(channelId)
	if err != nil {
		return err
	}
	if ch.CreatedBy != actorId {
		return fmt.Errorf("only the creator may add members: %w", types.ErrForbidden)
	}

	unlock := cm.locks.Lock(channelId)
	defer unlock()

	if err := cm.members.AddChannelMember(channelId, userId); err != nil {
		cm.log.Printf("add channel member: %v", err)
		return err
	}

	cm.hub.Broadcast(types.ChannelRoom(channelId), EventChannelMemberAdded, MemberChange{ChannelId: channelId, UserId: userId})
	cm.hub.Broadcast(types.UserRoom(userId), EventAddedToChannel, ChannelRef{ChannelId: channelId})

	return nil
}

// RemoveMember removes userId from a channel on behalf of actorId. Members
// may remove themselves and the creator may remove anyone but themselves.
// The removed user's connections are dropped from the channel room after
// both events are sent.
func (cm *ChannelMessages) RemoveMember(channelId, actorId, userId string) error {
	if channelId == "" || actorId == "" || userId == "" {
		return fmt.Errorf("missing channel or user: %w", types.ErrBadRequest)
	}

	ch, err := cm.members.GetChannel(channelId)
	if err != nil {
		return err
	}
	if userId == ch.CreatedBy {
		return fmt.Errorf("the channel creator cannot be removed: %w", types.ErrForbidden)
	}
	if actorId != userId && actorId != ch.CreatedBy {
		return fmt.Errorf("only the creator may remove other members: %w", types.ErrForbidden)
	}

	unlock := cm.locks.Lock(channelId)
	defer unlock()

	if err := cm.members.RemoveChannelMember(channelId, userId); err != nil {
		cm.log.Printf("remove channel member: %v", err)
		return err
	}

	room := types.ChannelRoom(channelId)
	cm.hub.Broadcast(room, EventChannelMemberRemoved, MemberChange{ChannelId: channelId, UserId: userId})
	cm.hub.Broadcast(types.UserRoom(userId), EventRemovedFromChannel, ChannelRef{ChannelId: channelId})
	cm.hub.LeaveRoomForUser(room, userId)

	return nil
}
