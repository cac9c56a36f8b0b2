package database

import "github.com/npezzotti/go-workspace-chat/internal/types"

// MessageStore is the append-only message log plus the conversation summaries
// derived from it.
type MessageStore interface {
	AppendDirectMessage(params AppendDirectMessageParams) (types.DirectMessage, error)
	GetDirectMessage(id string) (types.DirectMessage, error)
	ListDirectMessages(userA, userB string) ([]types.DirectMessage, error)
	MarkDirectMessagesRead(senderId, receiverId string) (int64, error)

	UpsertConversationSummary(params UpsertConversationParams) (types.Conversation, error)
	OpenConversation(userA, userB string) (types.Conversation, error)
	ListConversations(userId string) ([]types.Conversation, error)

	AppendChannelMessage(params AppendChannelMessageParams) (types.ChannelMessage, error)
	GetChannelMessage(id string) (types.ChannelMessage, error)
	ListChannelMessages(channelId string) ([]types.ChannelMessage, error)
	UpsertReaction(messageId, userId, emoji string) (types.ReactionResult, error)
	RemoveReaction(messageId, userId string) (types.ReactionResult, error)
}

// MembershipOracle answers channel authorization questions.
type MembershipOracle interface {
	GetChannel(channelId string) (types.Channel, error)
	IsChannelMember(channelId, userId string) (bool, error)
	IsChannelCreator(channelId, userId string) (bool, error)
	AddChannelMember(channelId, userId string) error
	RemoveChannelMember(channelId, userId string) error
}

// Directory resolves user display fields for outgoing events.
type Directory interface {
	DisplayName(userId string) (string, error)
}

type GoChatRepository interface {
	MessageStore
	MembershipOracle
	Directory

	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(id string) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateChannel(params CreateChannelParams) (types.Channel, error)
	ListChannels(workspaceId, userId string) ([]types.Channel, error)
}
