package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// MemoryDSN selects the in-process repository instead of PostgreSQL.
const MemoryDSN = "memory"

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	UploadDir      string
	PublicURL      string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// SplitOrigins parses a comma separated origin list, dropping blanks.
func SplitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, uploadDir, publicURL string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if publicURL != "" {
		u, err := url.Parse(publicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid public URL %q", publicURL)
		}
		publicURL = strings.TrimRight(publicURL, "/")
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		UploadDir:      uploadDir,
		PublicURL:      publicURL,
	}, nil
}
