package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-workspace-chat/internal/api"
	"github.com/npezzotti/go-workspace-chat/internal/attachments"
	"github.com/npezzotti/go-workspace-chat/internal/config"
	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/server"
	"github.com/npezzotti/go-workspace-chat/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, config.SplitOrigins(value)...)
	return nil
}

type repository interface {
	database.GoChatRepository
	Close() error
}

var (
	addr           string
	dsn            string
	signingKey     string
	uploadDir      string
	publicURL      string
	allowedOrigins stringSliceFlag
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func openRepository(logger *log.Logger, dsn string) (repository, error) {
	if dsn == config.MemoryDSN {
		logger.Println("using in-memory repository, data will not survive a restart")
		return database.NewMemGoChatRepository(), nil
	}

	db, err := database.NewPgGoChatRepository(dsn)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func main() {
	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Println("load .env:", err)
	}

	flag.StringVar(&addr, "addr", envOr("GOCHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("GOCHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"),
		`database connection string, or "memory" for an in-process store`)
	flag.StringVar(&signingKey, "signing-key", envOr("GOCHAT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&uploadDir, "upload-dir", envOr("GOCHAT_UPLOAD_DIR", "uploads"), "directory for uploaded attachments")
	flag.StringVar(&publicURL, "public-url", envOr("GOCHAT_PUBLIC_URL", ""), "absolute URL prefix for attachment links")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = config.SplitOrigins(os.Getenv("GOCHAT_ALLOWED_ORIGINS"))
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, uploadDir, publicURL)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := openRepository(logger, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	files, err := attachments.NewDiskStore(cfg.UploadDir, cfg.PublicURL)
	if err != nil {
		logger.Fatal("attachments:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer := server.NewChatServer(logger, statsUpdater)

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, files, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
