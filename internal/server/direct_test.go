package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/stats"
	"github.com/npezzotti/go-workspace-chat/internal/testutil"
	"github.com/npezzotti/go-workspace-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances one millisecond per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestRepo() *database.MemGoChatRepository {
	repo := database.NewMemGoChatRepository()
	repo.Clock = steppingClock()
	return repo
}

func newTestDirectMessages(t *testing.T) (*DirectMessages, *database.MemGoChatRepository, *testutil.Recorder) {
	repo := newTestRepo()
	rec := &testutil.Recorder{}
	return NewDirectMessages(testutil.TestLogger(t), repo, rec, stats.NopStats{}), repo, rec
}

func TestDirectMessages_SendText(t *testing.T) {
	dm, repo, rec := newTestDirectMessages(t)

	msg, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "hi", Kind: types.KindText})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Id)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, types.KindText, msg.Kind)
	assert.False(t, msg.Read, "expected new message to be unread")

	history, err := repo.ListDirectMessages("u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []types.DirectMessage{msg}, history, "expected exactly one stored message")

	convs, err := repo.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, [2]string{"u1", "u2"}, convs[0].ParticipantIds)
	assert.Equal(t, "hi", convs[0].LastMessagePreview)
	assert.True(t, convs[0].LastMessageAt.Equal(msg.CreatedAt))

	for _, room := range []types.RoomId{types.UserRoom("u1"), types.UserRoom("u2")} {
		events := rec.EventsFor(room)
		require.Len(t, events, 1, "expected one event for %s", room)
		assert.Equal(t, EventNewDirectMessage, events[0].Name)
		assert.Equal(t, msg, events[0].Payload)
	}
}

func TestDirectMessages_DefaultsToText(t *testing.T) {
	dm, _, _ := newTestDirectMessages(t)

	msg, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: ""})
	require.NoError(t, err)
	assert.Equal(t, types.KindText, msg.Kind)
	assert.Empty(t, msg.Body, "expected empty bodies to be accepted")
}

func TestDirectMessages_SendValidation(t *testing.T) {
	tcases := []struct {
		name string
		req  DirectSendRequest
	}{
		{name: "missing sender", req: DirectSendRequest{ReceiverId: "u2", Body: "hi"}},
		{name: "missing receiver", req: DirectSendRequest{SenderId: "u1", Body: "hi"}},
		{name: "sender is receiver", req: DirectSendRequest{SenderId: "u1", ReceiverId: "u1", Body: "hi"}},
		{name: "unknown kind", req: DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Kind: "video"}},
		{name: "file without message id", req: DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Kind: types.KindFile, AttachmentRef: "/uploads/a.png"}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			dm, repo, rec := newTestDirectMessages(t)

			_, err := dm.Send(tc.req)
			assert.ErrorIs(t, err, types.ErrBadRequest)
			assert.Empty(t, rec.Events(), "expected no broadcast")

			convs, _ := repo.ListConversations("u1")
			assert.Empty(t, convs, "expected no conversation summary")
		})
	}
}

func TestDirectMessages_StorageFailureDoesNotBroadcast(t *testing.T) {
	storageErr := fmt.Errorf("insert: %w", types.ErrStorageFailure)

	t.Run("append fails", func(t *testing.T) {
		db := &database.MockGoChatRepository{}
		defer db.AssertExpectations(t)
		db.On("AppendDirectMessage", mock.Anything).Return(types.DirectMessage{}, storageErr).Once()

		rec := &testutil.Recorder{}
		dm := NewDirectMessages(testutil.TestLogger(t), db, rec, stats.NopStats{})

		_, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "hi"})
		assert.ErrorIs(t, err, types.ErrStorageFailure)
		assert.Empty(t, rec.Events())
		db.AssertNotCalled(t, "UpsertConversationSummary", mock.Anything)
	})

	t.Run("summary upsert fails", func(t *testing.T) {
		stored := types.DirectMessage{Id: "m1", SenderId: "u1", ReceiverId: "u2", Body: "hi", Kind: types.KindText, CreatedAt: time.Now(), Seq: 1}

		db := &database.MockGoChatRepository{}
		defer db.AssertExpectations(t)
		db.On("AppendDirectMessage", database.AppendDirectMessageParams{
			SenderId:   "u1",
			ReceiverId: "u2",
			Body:       "hi",
			Kind:       types.KindText,
		}).Return(stored, nil).Once()
		db.On("UpsertConversationSummary", database.SummaryFor(stored)).Return(types.Conversation{}, storageErr).Once()

		rec := &testutil.Recorder{}
		dm := NewDirectMessages(testutil.TestLogger(t), db, rec, stats.NopStats{})

		_, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "hi"})
		assert.ErrorIs(t, err, types.ErrStorageFailure)
		assert.Empty(t, rec.Events(), "expected no partial broadcast")
	})
}

func TestDirectMessages_RapidSendsKeepLatestPreview(t *testing.T) {
	dm, repo, rec := newTestDirectMessages(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, receiver := "u1", "u2"
			if i%2 == 1 {
				sender, receiver = receiver, sender
			}
			_, err := dm.Send(DirectSendRequest{SenderId: sender, ReceiverId: receiver, Body: fmt.Sprintf("msg-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := repo.ListDirectMessages("u2", "u1")
	require.NoError(t, err)
	require.Len(t, history, n)

	convs, err := repo.ListConversations("u2")
	require.NoError(t, err)
	require.Len(t, convs, 1, "expected a single conversation for the pair")
	assert.Equal(t, history[n-1].Body, convs[0].LastMessagePreview, "expected preview of the chronologically last message")

	// each participant sees the events in the order the store accepted them
	for _, room := range []types.RoomId{types.UserRoom("u1"), types.UserRoom("u2")} {
		events := rec.EventsFor(room)
		require.Len(t, events, n)
		for i, e := range events {
			assert.Equal(t, history[i].Id, e.Payload.(types.DirectMessage).Id)
		}
	}
}

func TestDirectMessages_FileFlow(t *testing.T) {
	dm, repo, rec := newTestDirectMessages(t)

	uploaded, err := dm.Upload("u1", "u2", "http://localhost:8000/uploads/xyz123.png")
	require.NoError(t, err)
	assert.Equal(t, types.KindFile, uploaded.Kind)
	assert.Empty(t, rec.Events(), "expected upload alone not to broadcast")

	sent, err := dm.Send(DirectSendRequest{
		SenderId:      "u1",
		ReceiverId:    "u2",
		Kind:          types.KindFile,
		MessageId:     uploaded.Id,
		AttachmentRef: uploaded.AttachmentRef,
	})
	require.NoError(t, err)
	assert.Equal(t, uploaded.Id, sent.Id)

	history, _ := repo.ListDirectMessages("u1", "u2")
	assert.Len(t, history, 1, "expected the file message not to be stored twice")

	conv, err := repo.OpenConversation("u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "xyz123.png", conv.LastMessagePreview)

	assert.Len(t, rec.EventsFor(types.UserRoom("u1")), 1)
	assert.Len(t, rec.EventsFor(types.UserRoom("u2")), 1)
}

func TestDirectMessages_FileFlowRejectsForeignMessages(t *testing.T) {
	dm, _, rec := newTestDirectMessages(t)

	uploaded, err := dm.Upload("u1", "u2", "/uploads/a.png")
	require.NoError(t, err)
	text, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "hi"})
	require.NoError(t, err)
	before := len(rec.Events())

	tcases := []struct {
		name string
		req  DirectSendRequest
		err  error
	}{
		{
			name: "unknown message",
			req:  DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Kind: types.KindFile, MessageId: "missing"},
			err:  types.ErrNotFound,
		},
		{
			name: "other conversation",
			req:  DirectSendRequest{SenderId: "u1", ReceiverId: "u3", Kind: types.KindFile, MessageId: uploaded.Id},
			err:  types.ErrBadRequest,
		},
		{
			name: "other sender",
			req:  DirectSendRequest{SenderId: "u2", ReceiverId: "u1", Kind: types.KindFile, MessageId: uploaded.Id},
			err:  types.ErrBadRequest,
		},
		{
			name: "text message",
			req:  DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Kind: types.KindFile, MessageId: text.Id},
			err:  types.ErrBadRequest,
		},
		{
			name: "attachment mismatch",
			req:  DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Kind: types.KindFile, MessageId: uploaded.Id, AttachmentRef: "/uploads/b.png"},
			err:  types.ErrBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dm.Send(tc.req)
			assert.ErrorIs(t, err, tc.err)
			assert.Len(t, rec.Events(), before, "expected no broadcast")
		})
	}
}

func TestDirectMessages_Upload(t *testing.T) {
	dm, _, _ := newTestDirectMessages(t)

	_, err := dm.Upload("u1", "u2", "")
	assert.ErrorIs(t, err, types.ErrBadRequest)

	_, err = dm.Upload("", "u2", "/uploads/a.png")
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestDirectMessages_HistoryIsSymmetric(t *testing.T) {
	dm, _, _ := newTestDirectMessages(t)

	_, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "one"})
	require.NoError(t, err)
	_, err = dm.Send(DirectSendRequest{SenderId: "u2", ReceiverId: "u1", Body: "two"})
	require.NoError(t, err)

	ab, err := dm.History("u1", "u2")
	require.NoError(t, err)
	ba, err := dm.History("u2", "u1")
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	require.Len(t, ab, 2)
	assert.Equal(t, "one", ab[0].Body)
	assert.Equal(t, "two", ab[1].Body)

	_, err = dm.History("u1", "")
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestDirectMessages_MarkRead(t *testing.T) {
	dm, _, rec := newTestDirectMessages(t)

	_, err := dm.Send(DirectSendRequest{SenderId: "u1", ReceiverId: "u2", Body: "hi"})
	require.NoError(t, err)
	events := len(rec.Events())

	n, err := dm.MarkRead("u1", "u2")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = dm.MarkRead("u1", "u2")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n, "expected marking read to be idempotent")

	assert.Len(t, rec.Events(), events, "expected no read-state event")

	history, _ := dm.History("u1", "u2")
	assert.True(t, history[0].Read)
}

func TestDirectMessages_Conversations(t *testing.T) {
	dm, _, rec := newTestDirectMessages(t)

	opened, err := dm.OpenConversation("u1", "u3")
	require.NoError(t, err)
	assert.Empty(t, opened.LastMessagePreview)
	assert.Empty(t, rec.Events(), "expected opening a conversation not to broadcast")

	_, err = dm.Send(DirectSendRequest{SenderId: "u2", ReceiverId: "u1", Body: "latest"})
	require.NoError(t, err)

	convs, err := dm.Conversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "latest", convs[0].LastMessagePreview, "expected most recently updated first")
	assert.Equal(t, opened.Id, convs[1].Id)

	_, err = dm.OpenConversation("u1", "u1")
	assert.ErrorIs(t, err, types.ErrBadRequest)
	_, err = dm.Conversations("")
	assert.ErrorIs(t, err, types.ErrBadRequest)
}
