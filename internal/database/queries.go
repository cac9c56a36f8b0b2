package database

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

const (
	directMessageColumns  = "seq, id, sender_id, receiver_id, body, attachment_ref, kind, read, created_at"
	conversationColumns   = "id, user_low, user_high, last_message_preview, last_message_at, updated_at"
	channelMessageColumns = "seq, id, channel_id, sender_id, body, attachment_ref, kind, created_at"
	addMemberQuery        = "INSERT INTO channel_members (channel_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanDirectMessage(row scanner) (types.DirectMessage, error) {
	var (
		msg  types.DirectMessage
		kind string
	)
	err := row.Scan(
		&msg.Seq,
		&msg.Id,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.Body,
		&msg.AttachmentRef,
		&kind,
		&msg.Read,
		&msg.CreatedAt,
	)
	msg.Kind = types.MessageKind(kind)
	return msg, err
}

func scanConversation(row scanner) (types.Conversation, error) {
	var (
		conv   types.Conversation
		lastAt sql.NullTime
	)
	err := row.Scan(
		&conv.Id,
		&conv.ParticipantIds[0],
		&conv.ParticipantIds[1],
		&conv.LastMessagePreview,
		&lastAt,
		&conv.UpdatedAt,
	)
	conv.LastMessageAt = lastAt.Time
	return conv, err
}

func scanChannelMessage(row scanner) (types.ChannelMessage, error) {
	var (
		msg  types.ChannelMessage
		seq  int64
		kind string
	)
	err := row.Scan(
		&seq,
		&msg.Id,
		&msg.ChannelId,
		&msg.SenderId,
		&msg.Body,
		&msg.AttachmentRef,
		&kind,
		&msg.CreatedAt,
	)
	msg.Kind = types.MessageKind(kind)
	msg.Reactions = []types.Reaction{}
	return msg, err
}

func (db *PgGoChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, created_at, updated_at",
		uuid.NewString(),
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		now(),
	)

	var u User
	err := res.Scan(&u.Id, &u.Username, &u.EmailAddress, &u.CreatedAt, &u.UpdatedAt)

	return u, wrapErr("create account", err)
}

func (db *PgGoChatRepository) GetAccountById(id string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(&u.Id, &u.Username, &u.EmailAddress, &u.CreatedAt, &u.UpdatedAt)

	return u, wrapErr("get account", err)
}

func (db *PgGoChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)

	return u, wrapErr("get account by email", err)
}

func (db *PgGoChatRepository) DisplayName(userId string) (string, error) {
	var username string
	err := db.conn.QueryRow("SELECT username FROM accounts WHERE id = $1", userId).Scan(&username)
	return username, wrapErr("display name", err)
}

func (db *PgGoChatRepository) AppendDirectMessage(params AppendDirectMessageParams) (types.DirectMessage, error) {
	row := db.conn.QueryRow(
		"INSERT INTO direct_messages (id, sender_id, receiver_id, body, attachment_ref, kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+directMessageColumns,
		uuid.NewString(),
		params.SenderId,
		params.ReceiverId,
		params.Body,
		params.AttachmentRef,
		string(params.Kind),
		now(),
	)

	msg, err := scanDirectMessage(row)
	return msg, wrapErr("append direct message", err)
}

func (db *PgGoChatRepository) GetDirectMessage(id string) (types.DirectMessage, error) {
	row := db.conn.QueryRow("SELECT "+directMessageColumns+" FROM direct_messages WHERE id = $1", id)

	msg, err := scanDirectMessage(row)
	return msg, wrapErr("get direct message", err)
}

func (db *PgGoChatRepository) ListDirectMessages(userA, userB string) ([]types.DirectMessage, error) {
	rows, err := db.conn.Query(
		"SELECT "+directMessageColumns+" FROM direct_messages "+
			"WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1) "+
			"ORDER BY created_at ASC, seq ASC",
		userA,
		userB,
	)
	if err != nil {
		return nil, wrapErr("list direct messages", err)
	}
	defer rows.Close()

	messages := make([]types.DirectMessage, 0)
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, wrapErr("scan direct message", err)
		}
		messages = append(messages, msg)
	}

	return messages, wrapErr("list direct messages", rows.Err())
}

func (db *PgGoChatRepository) MarkDirectMessagesRead(senderId, receiverId string) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE direct_messages SET read = true WHERE sender_id = $1 AND receiver_id = $2 AND read = false",
		senderId,
		receiverId,
	)
	if err != nil {
		return 0, wrapErr("mark read", err)
	}

	n, err := res.RowsAffected()
	return n, wrapErr("mark read", err)
}

// UpsertConversationSummary writes the summary in a single statement. The
// conditional update only lets a write through when it is at least as recent
// as the stored one, so a stale writer cannot overwrite a newer preview.
func (db *PgGoChatRepository) UpsertConversationSummary(params UpsertConversationParams) (types.Conversation, error) {
	pair := types.Pair(params.Participants[0], params.Participants[1])
	ts := now()

	row := db.conn.QueryRow(
		"INSERT INTO conversations (id, user_low, user_high, last_message_preview, last_message_at, last_message_seq, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) "+
			"ON CONFLICT (user_low, user_high) DO UPDATE SET "+
			"last_message_preview = EXCLUDED.last_message_preview, "+
			"last_message_at = EXCLUDED.last_message_at, "+
			"last_message_seq = EXCLUDED.last_message_seq, "+
			"updated_at = EXCLUDED.updated_at "+
			"WHERE conversations.last_message_at IS NULL "+
			"OR (conversations.last_message_at, conversations.last_message_seq) <= (EXCLUDED.last_message_at, EXCLUDED.last_message_seq) "+
			"RETURNING "+conversationColumns,
		uuid.NewString(),
		pair[0],
		pair[1],
		params.Preview,
		params.At,
		params.Seq,
		ts,
	)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		// a newer message already owns the summary
		return db.getConversation(pair)
	}

	return conv, wrapErr("upsert conversation", err)
}

func (db *PgGoChatRepository) getConversation(pair [2]string) (types.Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations WHERE user_low = $1 AND user_high = $2",
		pair[0],
		pair[1],
	)

	conv, err := scanConversation(row)
	return conv, wrapErr("get conversation", err)
}

func (db *PgGoChatRepository) OpenConversation(userA, userB string) (types.Conversation, error) {
	pair := types.Pair(userA, userB)
	ts := now()

	_, err := db.conn.Exec(
		"INSERT INTO conversations (id, user_low, user_high, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) ON CONFLICT (user_low, user_high) DO NOTHING",
		uuid.NewString(),
		pair[0],
		pair[1],
		ts,
	)
	if err != nil {
		return types.Conversation{}, wrapErr("open conversation", err)
	}

	return db.getConversation(pair)
}

func (db *PgGoChatRepository) ListConversations(userId string) ([]types.Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE user_low = $1 OR user_high = $1 ORDER BY updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, wrapErr("list conversations", err)
	}
	defer rows.Close()

	convs := make([]types.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, wrapErr("scan conversation", err)
		}
		convs = append(convs, conv)
	}

	return convs, wrapErr("list conversations", rows.Err())
}

func (db *PgGoChatRepository) CreateChannel(params CreateChannelParams) (types.Channel, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return types.Channel{}, wrapErr("begin", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ch := types.Channel{
		Id:          uuid.NewString(),
		WorkspaceId: params.WorkspaceId,
		Name:        params.Name,
		Description: params.Description,
		CreatedBy:   params.CreatedBy,
		Members:     []string{params.CreatedBy},
		CreatedAt:   now(),
	}

	_, err = tx.Exec(
		"INSERT INTO channels (id, workspace_id, name, description, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		ch.Id,
		ch.WorkspaceId,
		ch.Name,
		ch.Description,
		ch.CreatedBy,
		ch.CreatedAt,
	)
	if err != nil {
		return types.Channel{}, wrapErr("create channel", err)
	}

	// the creator is a permanent member
	_, err = tx.Exec(addMemberQuery, ch.Id, ch.CreatedBy, ch.CreatedAt)
	if err != nil {
		return types.Channel{}, wrapErr("add creator", err)
	}

	if err = tx.Commit(); err != nil {
		return types.Channel{}, wrapErr("commit", err)
	}

	return ch, nil
}

func (db *PgGoChatRepository) GetChannel(channelId string) (types.Channel, error) {
	row := db.conn.QueryRow(
		"SELECT id, workspace_id, name, description, created_by, created_at FROM channels WHERE id = $1",
		channelId,
	)

	var ch types.Channel
	err := row.Scan(&ch.Id, &ch.WorkspaceId, &ch.Name, &ch.Description, &ch.CreatedBy, &ch.CreatedAt)
	if err != nil {
		return types.Channel{}, wrapErr("get channel", err)
	}

	rows, err := db.conn.Query(
		"SELECT user_id FROM channel_members WHERE channel_id = $1 ORDER BY created_at",
		channelId,
	)
	if err != nil {
		return types.Channel{}, wrapErr("get channel members", err)
	}
	defer rows.Close()

	ch.Members = make([]string, 0)
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return types.Channel{}, wrapErr("scan member", err)
		}
		ch.Members = append(ch.Members, userId)
	}

	return ch, wrapErr("get channel members", rows.Err())
}

func (db *PgGoChatRepository) ListChannels(workspaceId, userId string) ([]types.Channel, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.workspace_id, c.name, c.description, c.created_by, c.created_at "+
			"FROM channels c JOIN channel_members m ON m.channel_id = c.id "+
			"WHERE c.workspace_id = $1 AND m.user_id = $2 ORDER BY c.created_at",
		workspaceId,
		userId,
	)
	if err != nil {
		return nil, wrapErr("list channels", err)
	}
	defer rows.Close()

	channels := make([]types.Channel, 0)
	for rows.Next() {
		var ch types.Channel
		if err := rows.Scan(&ch.Id, &ch.WorkspaceId, &ch.Name, &ch.Description, &ch.CreatedBy, &ch.CreatedAt); err != nil {
			return nil, wrapErr("scan channel", err)
		}
		channels = append(channels, ch)
	}

	return channels, wrapErr("list channels", rows.Err())
}

func (db *PgGoChatRepository) IsChannelMember(channelId, userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)",
		channelId,
		userId,
	).Scan(&exists)

	return exists, wrapErr("is channel member", err)
}

func (db *PgGoChatRepository) IsChannelCreator(channelId, userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1 AND created_by = $2)",
		channelId,
		userId,
	).Scan(&exists)

	return exists, wrapErr("is channel creator", err)
}

func (db *PgGoChatRepository) AddChannelMember(channelId, userId string) error {
	_, err := db.conn.Exec(addMemberQuery, channelId, userId, now())
	return wrapErr("add channel member", err)
}

func (db *PgGoChatRepository) RemoveChannelMember(channelId, userId string) error {
	res, err := db.conn.Exec(
		"DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2",
		channelId,
		userId,
	)
	if err != nil {
		return wrapErr("remove channel member", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("remove channel member", err)
	}
	if n == 0 {
		return wrapErr("remove channel member", sql.ErrNoRows)
	}

	return nil
}

func (db *PgGoChatRepository) AppendChannelMessage(params AppendChannelMessageParams) (types.ChannelMessage, error) {
	row := db.conn.QueryRow(
		"INSERT INTO channel_messages (id, channel_id, sender_id, body, attachment_ref, kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+channelMessageColumns,
		uuid.NewString(),
		params.ChannelId,
		params.SenderId,
		params.Body,
		params.AttachmentRef,
		string(params.Kind),
		now(),
	)

	msg, err := scanChannelMessage(row)
	return msg, wrapErr("append channel message", err)
}

func (db *PgGoChatRepository) GetChannelMessage(id string) (types.ChannelMessage, error) {
	row := db.conn.QueryRow("SELECT "+channelMessageColumns+" FROM channel_messages WHERE id = $1", id)

	msg, err := scanChannelMessage(row)
	if err != nil {
		return types.ChannelMessage{}, wrapErr("get channel message", err)
	}

	rows, err := db.conn.Query(
		"SELECT user_id, emoji FROM channel_reactions WHERE message_id = $1 ORDER BY updated_at",
		id,
	)
	if err != nil {
		return types.ChannelMessage{}, wrapErr("get reactions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.Reaction
		if err := rows.Scan(&r.UserId, &r.Emoji); err != nil {
			return types.ChannelMessage{}, wrapErr("scan reaction", err)
		}
		msg.Reactions = append(msg.Reactions, r)
	}

	return msg, wrapErr("get reactions", rows.Err())
}

func (db *PgGoChatRepository) ListChannelMessages(channelId string) ([]types.ChannelMessage, error) {
	rows, err := db.conn.Query(
		"SELECT m.seq, m.id, m.channel_id, m.sender_id, m.body, m.attachment_ref, m.kind, m.created_at, "+
			"COALESCE(a.username, ''), r.user_id, r.emoji "+
			"FROM channel_messages m "+
			"LEFT JOIN accounts a ON a.id = m.sender_id "+
			"LEFT JOIN channel_reactions r ON r.message_id = m.id "+
			"WHERE m.channel_id = $1 ORDER BY m.created_at ASC, m.seq ASC, r.updated_at ASC",
		channelId,
	)
	if err != nil {
		return nil, wrapErr("list channel messages", err)
	}
	defer rows.Close()

	messages := make([]types.ChannelMessage, 0)
	for rows.Next() {
		var (
			msg           types.ChannelMessage
			seq           int64
			kind          string
			reactionUser  sql.NullString
			reactionEmoji sql.NullString
		)
		err := rows.Scan(
			&seq,
			&msg.Id,
			&msg.ChannelId,
			&msg.SenderId,
			&msg.Body,
			&msg.AttachmentRef,
			&kind,
			&msg.CreatedAt,
			&msg.SenderName,
			&reactionUser,
			&reactionEmoji,
		)
		if err != nil {
			return nil, wrapErr("scan channel message", err)
		}

		if n := len(messages); n == 0 || messages[n-1].Id != msg.Id {
			msg.Kind = types.MessageKind(kind)
			msg.Reactions = []types.Reaction{}
			messages = append(messages, msg)
		}

		if reactionUser.Valid {
			last := &messages[len(messages)-1]
			last.Reactions = append(last.Reactions, types.Reaction{
				UserId: reactionUser.String,
				Emoji:  reactionEmoji.String,
			})
		}
	}

	return messages, wrapErr("list channel messages", rows.Err())
}

func (db *PgGoChatRepository) UpsertReaction(messageId, userId, emoji string) (types.ReactionResult, error) {
	var inserted bool
	err := db.conn.QueryRow(
		"INSERT INTO channel_reactions (message_id, user_id, emoji, updated_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, updated_at = EXCLUDED.updated_at "+
			"RETURNING (xmax = 0)",
		messageId,
		userId,
		emoji,
		now(),
	).Scan(&inserted)
	if err != nil {
		return types.ReactionNoop, wrapErr("upsert reaction", err)
	}

	if inserted {
		return types.ReactionAdded, nil
	}
	return types.ReactionReplaced, nil
}

func (db *PgGoChatRepository) RemoveReaction(messageId, userId string) (types.ReactionResult, error) {
	res, err := db.conn.Exec(
		"DELETE FROM channel_reactions WHERE message_id = $1 AND user_id = $2",
		messageId,
		userId,
	)
	if err != nil {
		return types.ReactionNoop, wrapErr("remove reaction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return types.ReactionNoop, wrapErr("remove reaction", err)
	}
	if n == 0 {
		return types.ReactionNoop, nil
	}
	return types.ReactionRemoved, nil
}
