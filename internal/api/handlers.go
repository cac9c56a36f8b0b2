package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-workspace-chat/internal/attachments"
	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/server"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type OpenConversationRequest struct {
	UserId string `json:"user_id"`
}

type SendDirectMessageRequest struct {
	ReceiverId    string            `json:"receiver_id"`
	Message       string            `json:"message"`
	Type          types.MessageKind `json:"type"`
	MessageId     string            `json:"message_id,omitempty"`
	AttachmentRef string            `json:"attachment_ref,omitempty"`
}

type SendChannelMessageRequest struct {
	Message       string            `json:"message"`
	Type          types.MessageKind `json:"type"`
	AttachmentRef string            `json:"attachment_ref,omitempty"`
}

type CreateChannelRequest struct {
	WorkspaceId string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type AddMemberRequest struct {
	UserId string `json:"user_id"`
}

type ReactionResponse struct {
	MessageId string `json:"message_id"`
	Result    string `json:"result"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// writeError reports err with the status code of the error kind it wraps.
func (s *GoChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := FromError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decode reads a JSON request body into v, answering 400 on failure.
func (s *GoChatApp) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	convs, err := s.direct.Conversations(userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, convs)
}

func (s *GoChatApp) openConversation(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req OpenConversationRequest
	if !s.decode(w, r, &req) {
		return
	}

	conv, err := s.direct.OpenConversation(userId, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, conv)
}

func (s *GoChatApp) directHistory(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	msgs, err := s.direct.History(userId, r.PathValue("userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *GoChatApp) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req SendDirectMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.direct.Send(server.DirectSendRequest{
		SenderId:      userId,
		ReceiverId:    req.ReceiverId,
		Body:          req.Message,
		Kind:          req.Type,
		MessageId:     req.MessageId,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

// markRead marks everything the path user sent to the caller as read.
func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	n, err := s.direct.MarkRead(r.PathValue("userId"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MarkReadResponse{Updated: n})
}

// parseUpload reads a multipart upload body, capped a little above the
// attachment size limit to leave room for the other form fields.
func (s *GoChatApp) parseUpload(w http.ResponseWriter, r *http.Request) error {
	if s.files == nil {
		return NewNotFoundError()
	}

	r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var sizeErr *http.MaxBytesError
		if errors.As(err, &sizeErr) {
			return err
		}
		return NewBadRequestError()
	}

	return nil
}

// saveUpload stores the "file" field of a parsed upload and returns its URL.
func (s *GoChatApp) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", NewBadRequestError()
	}
	defer file.Close()

	return s.files.Save(header.Filename, file)
}

// uploadDirectFile stores an attachment and records the file message without
// announcing it. The client announces it by sending the returned id.
func (s *GoChatApp) uploadDirectFile(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.parseUpload(w, r); err != nil {
		s.writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	receiverId := r.FormValue("receiver_id")
	if receiverId == "" || receiverId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	url, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.direct.Upload(userId, receiverId, url)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) createChannel(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req CreateChannelRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.WorkspaceId == "" || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ch, err := s.db.CreateChannel(database.CreateChannelParams{
		WorkspaceId: req.WorkspaceId,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userId,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, ch)
}

func (s *GoChatApp) listChannels(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	channels, err := s.db.ListChannels(r.PathValue("workspaceId"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, channels)
}

func (s *GoChatApp) channelHistory(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	msgs, err := s.channels.History(r.PathValue("channelId"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *GoChatApp) sendChannelMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req SendChannelMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.channels.Send(server.ChannelSendRequest{
		ChannelId:     r.PathValue("channelId"),
		SenderId:      userId,
		Body:          req.Message,
		Kind:          req.Type,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

// uploadChannelFile stores an attachment and posts it to the channel.
func (s *GoChatApp) uploadChannelFile(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("channelId")

	if err := s.channels.CanJoin(channelId, userId); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.parseUpload(w, r); err != nil {
		s.writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	url, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.channels.Send(server.ChannelSendRequest{
		ChannelId:     channelId,
		SenderId:      userId,
		Body:          r.FormValue("message"),
		Kind:          types.KindFile,
		AttachmentRef: url,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	messageId := r.PathValue("messageId")

	var req ReactionRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.channels.ToggleReaction(messageId, userId, req.Emoji)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, ReactionResponse{MessageId: messageId, Result: result.String()})
}

func (s *GoChatApp) removeReaction(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	messageId := r.PathValue("messageId")

	result, err := s.channels.RemoveReaction(messageId, userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, ReactionResponse{MessageId: messageId, Result: result.String()})
}

func (s *GoChatApp) addChannelMember(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req AddMemberRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.channels.AddMember(r.PathValue("channelId"), userId, req.UserId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeChannelMember lets the creator remove anyone but themselves and lets
// members leave on their own.
func (s *GoChatApp) removeChannelMember(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.channels.RemoveMember(r.PathValue("channelId"), userId, r.PathValue("userId")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(id); err != nil {
		s.writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(id, conn, s.cs, s.direct, s.channels, s.log)

	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}
	go client.Write()
	go client.Read()
}
