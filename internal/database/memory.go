package database

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type memConversation struct {
	conv    types.Conversation
	lastSeq int64
}

type memChannelMessage struct {
	msg types.ChannelMessage
	seq int64
}

// MemGoChatRepository keeps everything in process memory. It backs the
// "memory" DSN for local development and the package tests.
type MemGoChatRepository struct {
	mu sync.Mutex

	seq             int64
	accounts        map[string]User
	directMessages  []types.DirectMessage
	conversations   map[[2]string]*memConversation
	channels        map[string]*types.Channel
	channelMessages []*memChannelMessage
	// Clock is used for createdAt stamps; tests may pin it.
	Clock func() time.Time
}

func NewMemGoChatRepository() *MemGoChatRepository {
	return &MemGoChatRepository{
		accounts:      make(map[string]User),
		conversations: make(map[[2]string]*memConversation),
		channels:      make(map[string]*types.Channel),
		Clock:         now,
	}
}

func (m *MemGoChatRepository) nextSeq() int64 {
	m.seq++
	return m.seq
}

func (m *MemGoChatRepository) Ping() error  { return nil }
func (m *MemGoChatRepository) Close() error { return nil }

func (m *MemGoChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if u.EmailAddress == params.EmailAddress {
			return User{}, fmt.Errorf("create account: %w: email taken", types.ErrBadRequest)
		}
	}

	ts := m.Clock()
	u := User{
		Id:           uuid.NewString(),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	m.accounts[u.Id] = u

	return u, nil
}

// PutAccount stores an account under a caller-chosen id.
func (m *MemGoChatRepository) PutAccount(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[u.Id] = u
}

func (m *MemGoChatRepository) GetAccountById(id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.accounts[id]
	if !ok {
		return User{}, fmt.Errorf("get account: %w", types.ErrNotFound)
	}
	u.PasswordHash = ""
	return u, nil
}

func (m *MemGoChatRepository) GetAccountByEmail(email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if u.EmailAddress == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("get account by email: %w", types.ErrNotFound)
}

func (m *MemGoChatRepository) DisplayName(userId string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.accounts[userId]
	if !ok {
		return "", fmt.Errorf("display name: %w", types.ErrNotFound)
	}
	return u.Username, nil
}

func (m *MemGoChatRepository) AppendDirectMessage(params AppendDirectMessageParams) (types.DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := types.DirectMessage{
		Id:            uuid.NewString(),
		SenderId:      params.SenderId,
		ReceiverId:    params.ReceiverId,
		Body:          params.Body,
		AttachmentRef: params.AttachmentRef,
		Kind:          params.Kind,
		CreatedAt:     m.Clock(),
		Seq:           m.nextSeq(),
	}
	m.directMessages = append(m.directMessages, msg)

	return msg, nil
}

func (m *MemGoChatRepository) GetDirectMessage(id string) (types.DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.directMessages {
		if msg.Id == id {
			return msg, nil
		}
	}
	return types.DirectMessage{}, fmt.Errorf("get direct message: %w", types.ErrNotFound)
}

func (m *MemGoChatRepository) ListDirectMessages(userA, userB string) ([]types.DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]types.DirectMessage, 0)
	for _, msg := range m.directMessages {
		if (msg.SenderId == userA && msg.ReceiverId == userB) ||
			(msg.SenderId == userB && msg.ReceiverId == userA) {
			messages = append(messages, msg)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].Seq < messages[j].Seq
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return messages, nil
}

func (m *MemGoChatRepository) MarkDirectMessagesRead(senderId, receiverId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for i := range m.directMessages {
		msg := &m.directMessages[i]
		if msg.SenderId == senderId && msg.ReceiverId == receiverId && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (m *MemGoChatRepository) UpsertConversationSummary(params UpsertConversationParams) (types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := types.Pair(params.Participants[0], params.Participants[1])
	ts := m.Clock()

	c, ok := m.conversations[pair]
	if !ok {
		c = &memConversation{conv: types.Conversation{Id: uuid.NewString(), ParticipantIds: pair}}
		m.conversations[pair] = c
	} else if !c.conv.LastMessageAt.IsZero() {
		if params.At.Before(c.conv.LastMessageAt) ||
			(params.At.Equal(c.conv.LastMessageAt) && params.Seq < c.lastSeq) {
			return c.conv, nil
		}
	}

	c.conv.LastMessagePreview = params.Preview
	c.conv.LastMessageAt = params.At
	c.conv.UpdatedAt = ts
	c.lastSeq = params.Seq

	return c.conv, nil
}

func (m *MemGoChatRepository) OpenConversation(userA, userB string) (types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := types.Pair(userA, userB)
	if c, ok := m.conversations[pair]; ok {
		return c.conv, nil
	}

	c := &memConversation{conv: types.Conversation{
		Id:             uuid.NewString(),
		ParticipantIds: pair,
		UpdatedAt:      m.Clock(),
	}}
	m.conversations[pair] = c

	return c.conv, nil
}

func (m *MemGoChatRepository) ListConversations(userId string) ([]types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := make([]types.Conversation, 0)
	for pair, c := range m.conversations {
		if pair[0] == userId || pair[1] == userId {
			convs = append(convs, c.conv)
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	return convs, nil
}

func (m *MemGoChatRepository) CreateChannel(params CreateChannelParams) (types.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := &types.Channel{
		Id:          uuid.NewString(),
		WorkspaceId: params.WorkspaceId,
		Name:        params.Name,
		Description: params.Description,
		CreatedBy:   params.CreatedBy,
		Members:     []string{params.CreatedBy},
		CreatedAt:   m.Clock(),
	}
	m.channels[ch.Id] = ch

	return *ch, nil
}

// PutChannel stores a channel under a caller-chosen id. The creator is
// always added to the member list.
func (m *MemGoChatRepository) PutChannel(ch types.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(ch.Members, ch.CreatedBy) {
		ch.Members = append([]string{ch.CreatedBy}, ch.Members...)
	}
	m.channels[ch.Id] = &ch
}

func (m *MemGoChatRepository) GetChannel(channelId string) (types.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelId]
	if !ok {
		return types.Channel{}, fmt.Errorf("get channel: %w", types.ErrNotFound)
	}

	out := *ch
	out.Members = slices.Clone(ch.Members)
	return out, nil
}

func (m *MemGoChatRepository) ListChannels(workspaceId, userId string) ([]types.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make([]types.Channel, 0)
	for _, ch := range m.channels {
		if ch.WorkspaceId == workspaceId && slices.Contains(ch.Members, userId) {
			out := *ch
			out.Members = slices.Clone(ch.Members)
			channels = append(channels, out)
		}
	}

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})

	return channels, nil
}

func (m *MemGoChatRepository) IsChannelMember(channelId, userId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelId]
	if !ok {
		return false, nil
	}
	return slices.Contains(ch.Members, userId), nil
}

func (m *MemGoChatRepository) IsChannelCreator(channelId, userId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelId]
	if !ok {
		return false, nil
	}
	return ch.CreatedBy == userId, nil
}

func (m *MemGoChatRepository) AddChannelMember(channelId, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelId]
	if !ok {
		return fmt.Errorf("add channel member: %w", types.ErrNotFound)
	}
	if !slices.Contains(ch.Members, userId) {
		ch.Members = append(ch.Members, userId)
	}
	return nil
}

func (m *MemGoChatRepository) RemoveChannelMember(channelId, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[channelId]
	if !ok {
		return fmt.Errorf("remove channel member: %w", types.ErrNotFound)
	}

	i := slices.Index(ch.Members, userId)
	if i < 0 {
		return fmt.Errorf("remove channel member: %w", types.ErrNotFound)
	}
	ch.Members = slices.Delete(ch.Members, i, i+1)
	return nil
}

func (m *MemGoChatRepository) AppendChannelMessage(params AppendChannelMessageParams) (types.ChannelMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[params.ChannelId]; !ok {
		return types.ChannelMessage{}, fmt.Errorf("append channel message: %w", types.ErrNotFound)
	}

	entry := &memChannelMessage{
		msg: types.ChannelMessage{
			Id:            uuid.NewString(),
			ChannelId:     params.ChannelId,
			SenderId:      params.SenderId,
			Body:          params.Body,
			AttachmentRef: params.AttachmentRef,
			Kind:          params.Kind,
			Reactions:     []types.Reaction{},
			CreatedAt:     m.Clock(),
		},
		seq: m.nextSeq(),
	}
	m.channelMessages = append(m.channelMessages, entry)

	return copyChannelMessage(entry.msg), nil
}

func (m *MemGoChatRepository) findChannelMessage(id string) *memChannelMessage {
	for _, entry := range m.channelMessages {
		if entry.msg.Id == id {
			return entry
		}
	}
	return nil
}

func (m *MemGoChatRepository) GetChannelMessage(id string) (types.ChannelMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.findChannelMessage(id)
	if entry == nil {
		return types.ChannelMessage{}, fmt.Errorf("get channel message: %w", types.ErrNotFound)
	}
	return copyChannelMessage(entry.msg), nil
}

func (m *MemGoChatRepository) ListChannelMessages(channelId string) ([]types.ChannelMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*memChannelMessage
	for _, entry := range m.channelMessages {
		if entry.msg.ChannelId == channelId {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].msg.CreatedAt.Equal(entries[j].msg.CreatedAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].msg.CreatedAt.Before(entries[j].msg.CreatedAt)
	})

	messages := make([]types.ChannelMessage, 0, len(entries))
	for _, entry := range entries {
		msg := copyChannelMessage(entry.msg)
		if u, ok := m.accounts[msg.SenderId]; ok {
			msg.SenderName = u.Username
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (m *MemGoChatRepository) UpsertReaction(messageId, userId, emoji string) (types.ReactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.findChannelMessage(messageId)
	if entry == nil {
		return types.ReactionNoop, fmt.Errorf("upsert reaction: %w", types.ErrNotFound)
	}

	for i := range entry.msg.Reactions {
		if entry.msg.Reactions[i].UserId == userId {
			entry.msg.Reactions[i].Emoji = emoji
			return types.ReactionReplaced, nil
		}
	}

	entry.msg.Reactions = append(entry.msg.Reactions, types.Reaction{UserId: userId, Emoji: emoji})
	return types.ReactionAdded, nil
}

func (m *MemGoChatRepository) RemoveReaction(messageId, userId string) (types.ReactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.findChannelMessage(messageId)
	if entry == nil {
		return types.ReactionNoop, fmt.Errorf("remove reaction: %w", types.ErrNotFound)
	}

	for i := range entry.msg.Reactions {
		if entry.msg.Reactions[i].UserId == userId {
			entry.msg.Reactions = slices.Delete(entry.msg.Reactions, i, i+1)
			return types.ReactionRemoved, nil
		}
	}
	return types.ReactionNoop, nil
}

func copyChannelMessage(msg types.ChannelMessage) types.ChannelMessage {
	msg.Reactions = slices.Clone(msg.Reactions)
	if msg.Reactions == nil {
		msg.Reactions = []types.Reaction{}
	}
	return msg
}
