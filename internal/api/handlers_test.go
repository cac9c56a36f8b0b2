package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"

	"github.com/npezzotti/go-workspace-chat/internal/config"
	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/server"
	"github.com/npezzotti/go-workspace-chat/internal/testutil"
	"github.com/npezzotti/go-workspace-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channelText(channelId, senderId, body string) server.ChannelSendRequest {
	return server.ChannelSendRequest{ChannelId: channelId, SenderId: senderId, Body: body}
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, nil, nil, &config.Config{})
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	a := newTestApp(t)

	routes := []struct{ method, target string }{
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/conversations"},
		{http.MethodPost, "/api/messages"},
		{http.MethodPost, "/api/messages/upload"},
		{http.MethodGet, "/api/messages/u2"},
		{http.MethodPost, "/api/messages/u2/read"},
		{http.MethodPost, "/api/channels"},
		{http.MethodGet, "/api/workspaces/w1/channels"},
		{http.MethodGet, "/api/channels/c1/messages"},
		{http.MethodPost, "/api/channels/c1/messages"},
		{http.MethodPost, "/api/channels/c1/upload"},
		{http.MethodPost, "/api/channels/c1/members"},
		{http.MethodDelete, "/api/channels/c1/members/u2"},
		{http.MethodPost, "/api/reactions/m1"},
		{http.MethodDelete, "/api/reactions/m1"},
		{http.MethodGet, "/ws"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.target, func(t *testing.T) {
			rr := a.do(t, "", route.method, route.target, nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestDirectMessageRoutes(t *testing.T) {
	a := newTestApp(t)
	a.addUser("u1", "uma")
	a.addUser("u2", "bo")

	rr := a.do(t, "u1", http.MethodPost, "/api/messages", SendDirectMessageRequest{ReceiverId: "u2", Message: "hi"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sent := decodeBody[types.DirectMessage](t, rr)
	assert.Equal(t, "hi", sent.Body)
	assert.Equal(t, types.KindText, sent.Kind)
	assert.Equal(t, "u1", sent.SenderId)
	assert.False(t, sent.Read)

	rr = a.do(t, "u2", http.MethodGet, "/api/messages/u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[[]types.DirectMessage](t, rr)
	require.Len(t, history, 1)
	assert.Equal(t, sent.Id, history[0].Id)

	rr = a.do(t, "u2", http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	convs := decodeBody[[]types.Conversation](t, rr)
	require.Len(t, convs, 1)
	assert.Equal(t, "hi", convs[0].LastMessagePreview)
	assert.Equal(t, [2]string{"u1", "u2"}, convs[0].ParticipantIds)

	rr = a.do(t, "u2", http.MethodPost, "/api/messages/u1/read", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decodeBody[MarkReadResponse](t, rr).Updated)

	rr = a.do(t, "u2", http.MethodPost, "/api/messages/u1/read", nil)
	assert.Equal(t, int64(0), decodeBody[MarkReadResponse](t, rr).Updated, "expected second mark read to change nothing")

	rr = a.do(t, "u1", http.MethodPost, "/api/messages/u2/read", nil)
	assert.Equal(t, int64(0), decodeBody[MarkReadResponse](t, rr).Updated, "expected only messages to the caller to be marked")
}

func TestSendDirectMessage_Errors(t *testing.T) {
	a := newTestApp(t)

	tcases := []struct {
		name         string
		body         any
		expectedCode int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing receiver", SendDirectMessageRequest{Message: "hi"}, http.StatusBadRequest},
		{"message to self", SendDirectMessageRequest{ReceiverId: "u1", Message: "hi"}, http.StatusBadRequest},
		{"unknown kind", SendDirectMessageRequest{ReceiverId: "u2", Message: "hi", Type: "video"}, http.StatusBadRequest},
		{"file without message id", SendDirectMessageRequest{ReceiverId: "u2", Type: types.KindFile}, http.StatusBadRequest},
		{"file with unknown message id", SendDirectMessageRequest{ReceiverId: "u2", Type: types.KindFile, MessageId: "nope"}, http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, "u1", http.MethodPost, "/api/messages", tc.body)
			assert.Equal(t, tc.expectedCode, rr.Code, rr.Body.String())
		})
	}

	history, err := a.repo.ListDirectMessages("u1", "u2")
	require.NoError(t, err)
	assert.Empty(t, history, "expected rejected sends to store nothing")
}

func TestOpenConversation(t *testing.T) {
	a := newTestApp(t)

	rr := a.do(t, "u2", http.MethodPost, "/api/conversations", OpenConversationRequest{UserId: "u1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	conv := decodeBody[types.Conversation](t, rr)
	assert.Equal(t, [2]string{"u1", "u2"}, conv.ParticipantIds)
	assert.Empty(t, conv.LastMessagePreview)

	rr = a.do(t, "u1", http.MethodPost, "/api/conversations", OpenConversationRequest{UserId: "u2"})
	assert.Equal(t, conv.Id, decodeBody[types.Conversation](t, rr).Id, "expected both sides to share the conversation")

	rr = a.do(t, "u1", http.MethodPost, "/api/conversations", OpenConversationRequest{UserId: "u1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadDirectFile(t *testing.T) {
	a := newTestApp(t)

	rr := a.upload(t, "u1", "/api/messages/upload", "Notes.TXT", "hello", map[string]string{"receiver_id": "u2"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	uploaded := decodeBody[types.DirectMessage](t, rr)
	assert.Equal(t, types.KindFile, uploaded.Kind)
	assert.True(t, strings.HasPrefix(uploaded.AttachmentRef, "/uploads/"), uploaded.AttachmentRef)
	assert.True(t, strings.HasSuffix(uploaded.AttachmentRef, ".txt"), uploaded.AttachmentRef)

	// the upload alone does not move the conversation summary
	convs, err := a.repo.ListConversations("u1")
	require.NoError(t, err)
	assert.Empty(t, convs)

	rr = a.do(t, "u1", http.MethodPost, "/api/messages", SendDirectMessageRequest{
		ReceiverId: "u2",
		Type:       types.KindFile,
		MessageId:  uploaded.Id,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, uploaded.Id, decodeBody[types.DirectMessage](t, rr).Id)

	convs, err = a.repo.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, path.Base(uploaded.AttachmentRef), convs[0].LastMessagePreview)

	rr = a.do(t, "", http.MethodGet, uploaded.AttachmentRef, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())
}

func TestUploadDirectFile_Errors(t *testing.T) {
	a := newTestApp(t)

	rr := a.upload(t, "u1", "/api/messages/upload", "", "", map[string]string{"receiver_id": "u2"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected missing file to fail")

	rr = a.upload(t, "u1", "/api/messages/upload", "a.txt", "x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected missing receiver to fail")

	rr = a.upload(t, "u1", "/api/messages/upload", "a.txt", "x", map[string]string{"receiver_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected upload to self to fail")

	rr = a.do(t, "u1", http.MethodPost, "/api/messages/upload", "not multipart")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChannelRoutes(t *testing.T) {
	a := newTestApp(t)
	a.addUser("owner", "Olive")
	a.addUser("member", "Mo")
	a.addUser("outsider", "Otto")

	rr := a.do(t, "owner", http.MethodPost, "/api/channels", CreateChannelRequest{WorkspaceId: "w1", Name: "general"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ch := decodeBody[types.Channel](t, rr)
	assert.Equal(t, "owner", ch.CreatedBy)
	assert.Equal(t, []string{"owner"}, ch.Members)

	rr = a.do(t, "owner", http.MethodGet, "/api/workspaces/w1/channels", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]types.Channel](t, rr), 1)

	rr = a.do(t, "outsider", http.MethodGet, "/api/workspaces/w1/channels", nil)
	assert.Empty(t, decodeBody[[]types.Channel](t, rr), "expected channels to be listed for members only")

	channelPath := "/api/channels/" + ch.Id

	rr = a.do(t, "owner", http.MethodPost, channelPath+"/members", AddMemberRequest{UserId: "member"})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = a.do(t, "member", http.MethodPost, channelPath+"/members", AddMemberRequest{UserId: "outsider"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "expected only the creator to add members")

	rr = a.do(t, "member", http.MethodPost, channelPath+"/messages", SendChannelMessageRequest{Message: "hello"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	msg := decodeBody[types.ChannelMessage](t, rr)
	assert.Equal(t, "Mo", msg.SenderName)
	assert.Equal(t, ch.Id, msg.ChannelId)

	rr = a.do(t, "outsider", http.MethodPost, channelPath+"/messages", SendChannelMessageRequest{Message: "let me in"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, "member", http.MethodGet, channelPath+"/messages", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]types.ChannelMessage](t, rr), 1)

	rr = a.do(t, "outsider", http.MethodGet, channelPath+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, "owner", http.MethodDelete, channelPath+"/members/owner", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code, "expected the creator to stay in the channel")

	rr = a.do(t, "member", http.MethodDelete, channelPath+"/members/member", nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = a.do(t, "member", http.MethodGet, channelPath+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code, "expected removed members to lose access")

	rr = a.do(t, "owner", http.MethodGet, "/api/channels/nope/messages", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, "owner", http.MethodPost, "/api/channels", CreateChannelRequest{Name: "no workspace"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReactionRoutes(t *testing.T) {
	a := newTestApp(t)
	a.repo.PutChannel(types.Channel{Id: "c1", CreatedBy: "owner", Members: []string{"member"}})

	msg, err := a.channels.Send(channelText("c1", "owner", "react to me"))
	require.NoError(t, err)

	target := "/api/reactions/" + msg.Id
	steps := []struct {
		userId string
		method string
		emoji  string
		code   int
		result string
	}{
		{"member", http.MethodPost, "👍", http.StatusOK, "added"},
		{"member", http.MethodPost, "🎉", http.StatusOK, "replaced"},
		{"member", http.MethodPost, "🎉", http.StatusOK, "removed"},
		{"member", http.MethodDelete, "", http.StatusOK, "noop"},
		{"owner", http.MethodPost, "👍", http.StatusOK, "added"},
		{"owner", http.MethodDelete, "", http.StatusOK, "removed"},
		{"outsider", http.MethodPost, "👍", http.StatusForbidden, ""},
		{"member", http.MethodPost, "", http.StatusBadRequest, ""},
	}

	for _, step := range steps {
		var body any
		if step.method == http.MethodPost {
			body = ReactionRequest{Emoji: step.emoji}
		}

		rr := a.do(t, step.userId, step.method, target, body)
		require.Equal(t, step.code, rr.Code, "%s %s %q: %s", step.userId, step.method, step.emoji, rr.Body.String())
		if step.result != "" {
			resp := decodeBody[ReactionResponse](t, rr)
			assert.Equal(t, msg.Id, resp.MessageId)
			assert.Equal(t, step.result, resp.Result, "%s %s %q", step.userId, step.method, step.emoji)
		}
	}

	rr := a.do(t, "member", http.MethodPost, "/api/reactions/missing", ReactionRequest{Emoji: "👍"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "member", http.MethodDelete, "/api/reactions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadChannelFile(t *testing.T) {
	a := newTestApp(t)
	a.repo.PutChannel(types.Channel{Id: "c1", CreatedBy: "owner"})

	rr := a.upload(t, "outsider", "/api/channels/c1/upload", "plan.pdf", "%PDF", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.upload(t, "owner", "/api/channels/nope/upload", "plan.pdf", "%PDF", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.upload(t, "owner", "/api/channels/c1/upload", "plan.pdf", "%PDF", map[string]string{"message": "latest plan"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	msg := decodeBody[types.ChannelMessage](t, rr)
	assert.Equal(t, types.KindFile, msg.Kind)
	assert.Equal(t, "latest plan", msg.Body)
	assert.True(t, strings.HasSuffix(msg.AttachmentRef, ".pdf"), msg.AttachmentRef)

	history, err := a.repo.ListChannelMessages("c1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
