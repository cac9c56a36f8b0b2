package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-workspace-chat/internal/attachments"
	"github.com/npezzotti/go-workspace-chat/internal/auth"
	"github.com/npezzotti/go-workspace-chat/internal/config"
	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/server"
	"github.com/npezzotti/go-workspace-chat/internal/stats"
)

type GoChatApp struct {
	log            *log.Logger
	db             database.GoChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	direct         *server.DirectMessages
	channels       *server.ChannelMessages
	files          *attachments.DiskStore
	resolver       *auth.Resolver
	signingKey     []byte
	allowedOrigins []string
}

func NewGoChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.GoChatRepository,
	files *attachments.DiskStore, st stats.StatsProvider, cfg *config.Config) *GoChatApp {
	if st == nil {
		st = stats.NopStats{}
	}

	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		files:          files,
		resolver:       auth.NewResolver(cfg.SigningKey),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if cs != nil {
		s.direct = server.NewDirectMessages(logger, db, cs, st)
		s.channels = server.NewChannelMessages(logger, db, db, db, cs, st)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.HandleFunc("POST /api/conversations", s.authMiddleware(s.openConversation))
	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.sendDirectMessage))
	mux.HandleFunc("POST /api/messages/upload", s.authMiddleware(s.uploadDirectFile))
	mux.HandleFunc("GET /api/messages/{userId}", s.authMiddleware(s.directHistory))
	mux.HandleFunc("POST /api/messages/{userId}/read", s.authMiddleware(s.markRead))

	mux.HandleFunc("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.HandleFunc("GET /api/workspaces/{workspaceId}/channels", s.authMiddleware(s.listChannels))
	mux.HandleFunc("GET /api/channels/{channelId}/messages", s.authMiddleware(s.channelHistory))
	mux.HandleFunc("POST /api/channels/{channelId}/messages", s.authMiddleware(s.sendChannelMessage))
	mux.HandleFunc("POST /api/channels/{channelId}/upload", s.authMiddleware(s.uploadChannelFile))
	mux.HandleFunc("POST /api/channels/{channelId}/members", s.authMiddleware(s.addChannelMember))
	mux.HandleFunc("DELETE /api/channels/{channelId}/members/{userId}", s.authMiddleware(s.removeChannelMember))
	mux.HandleFunc("POST /api/reactions/{messageId}", s.authMiddleware(s.toggleReaction))
	mux.HandleFunc("DELETE /api/reactions/{messageId}", s.authMiddleware(s.removeReaction))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	if files != nil {
		mux.Handle("GET "+attachments.RoutePrefix, files.Handler())
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
