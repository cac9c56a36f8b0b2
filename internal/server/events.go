package server

import "github.com/npezzotti/go-workspace-chat/internal/types"

// Realtime event names.
const (
	EventNewDirectMessage       = "new_direct_message"
	EventNewChannelMessage      = "new_channel_message"
	EventChannelReactionUpdated = "channel_reaction_updated"
	EventChannelReactionRemoved = "channel_reaction_removed"
	EventChannelMemberRemoved   = "channel_member_removed"
	EventRemovedFromChannel     = "removed_from_channel"
	EventChannelMemberAdded     = "channel_member_added"
	EventAddedToChannel         = "added_to_channel"
)

// Broadcaster fans events out to hub rooms. *ChatServer implements it; tests
// substitute a recorder.
type Broadcaster interface {
	Broadcast(room types.RoomId, event string, payload any)
	// LeaveRoomForUser drops every connection userId has in room.
	LeaveRoomForUser(room types.RoomId, userId string)
}

type ReactionUpdated struct {
	MessageId string `json:"message_id"`
	UserId    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	ChannelId string `json:"channel_id"`
}

type ReactionRemoved struct {
	MessageId string `json:"message_id"`
	UserId    string `json:"user_id"`
	ChannelId string `json:"channel_id"`
}

type MemberChange struct {
	ChannelId string `json:"channel_id"`
	UserId    string `json:"user_id"`
}

type ChannelRef struct {
	ChannelId string `json:"channel_id"`
}
