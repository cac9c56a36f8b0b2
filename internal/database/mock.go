package database

import (
	"github.com/npezzotti/go-workspace-chat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) DisplayName(userId string) (string, error) {
	args := m.Called(userId)
	return args.String(0), args.Error(1)
}
func (m *MockGoChatRepository) AppendDirectMessage(params AppendDirectMessageParams) (types.DirectMessage, error) {
	args := m.Called(params)
	return args.Get(0).(types.DirectMessage), args.Error(1)
}
func (m *MockGoChatRepository) GetDirectMessage(id string) (types.DirectMessage, error) {
	args := m.Called(id)
	return args.Get(0).(types.DirectMessage), args.Error(1)
}
func (m *MockGoChatRepository) ListDirectMessages(userA, userB string) ([]types.DirectMessage, error) {
	args := m.Called(userA, userB)
	return args.Get(0).([]types.DirectMessage), args.Error(1)
}
func (m *MockGoChatRepository) MarkDirectMessagesRead(senderId, receiverId string) (int64, error) {
	args := m.Called(senderId, receiverId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockGoChatRepository) UpsertConversationSummary(params UpsertConversationParams) (types.Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(types.Conversation), args.Error(1)
}
func (m *MockGoChatRepository) OpenConversation(userA, userB string) (types.Conversation, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(types.Conversation), args.Error(1)
}
func (m *MockGoChatRepository) ListConversations(userId string) ([]types.Conversation, error) {
	args := m.Called(userId)
	return args.Get(0).([]types.Conversation), args.Error(1)
}
func (m *MockGoChatRepository) CreateChannel(params CreateChannelParams) (types.Channel, error) {
	args := m.Called(params)
	return args.Get(0).(types.Channel), args.Error(1)
}
func (m *MockGoChatRepository) GetChannel(channelId string) (types.Channel, error) {
	args := m.Called(channelId)
	return args.Get(0).(types.Channel), args.Error(1)
}
func (m *MockGoChatRepository) ListChannels(workspaceId, userId string) ([]types.Channel, error) {
	args := m.Called(workspaceId, userId)
	return args.Get(0).([]types.Channel), args.Error(1)
}
func (m *MockGoChatRepository) IsChannelMember(channelId, userId string) (bool, error) {
	args := m.Called(channelId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockGoChatRepository) IsChannelCreator(channelId, userId string) (bool, error) {
	args := m.Called(channelId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockGoChatRepository) AddChannelMember(channelId, userId string) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockGoChatRepository) RemoveChannelMember(channelId, userId string) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockGoChatRepository) AppendChannelMessage(params AppendChannelMessageParams) (types.ChannelMessage, error) {
	args := m.Called(params)
	return args.Get(0).(types.ChannelMessage), args.Error(1)
}
func (m *MockGoChatRepository) GetChannelMessage(id string) (types.ChannelMessage, error) {
	args := m.Called(id)
	return args.Get(0).(types.ChannelMessage), args.Error(1)
}
func (m *MockGoChatRepository) ListChannelMessages(channelId string) ([]types.ChannelMessage, error) {
	args := m.Called(channelId)
	return args.Get(0).([]types.ChannelMessage), args.Error(1)
}
func (m *MockGoChatRepository) UpsertReaction(messageId, userId, emoji string) (types.ReactionResult, error) {
	args := m.Called(messageId, userId, emoji)
	return args.Get(0).(types.ReactionResult), args.Error(1)
}
func (m *MockGoChatRepository) RemoveReaction(messageId, userId string) (types.ReactionResult, error) {
	args := m.Called(messageId, userId)
	return args.Get(0).(types.ReactionResult), args.Error(1)
}
