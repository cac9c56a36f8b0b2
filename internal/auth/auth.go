// Package auth resolves bearer credentials into user identifiers.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-workspace-chat/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultExpiration = time.Hour * 24
	TokenCookieKey    = "token"

	userIdClaim = "user-id"
	expClaim    = "exp"
)

type Resolver struct {
	signingKey []byte
}

func NewResolver(signingKey []byte) *Resolver {
	return &Resolver{signingKey: signingKey}
}

// IssueToken signs a credential for userId that expires after exp.
func (r *Resolver) IssueToken(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(r.signingKey)
}

// Resolve verifies a credential and returns the user id it carries. Missing,
// malformed and expired credentials fail with types.ErrUnauthorized.
func (r *Resolver) Resolve(credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("missing credential: %w", types.ErrUnauthorized)
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w: %v", types.ErrUnauthorized, err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token: %w", types.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims: %w", types.ErrUnauthorized)
	}

	// tokens without an expiry are rejected
	if _, ok := claims[expClaim]; !ok {
		return "", fmt.Errorf("missing exp claim: %w", types.ErrUnauthorized)
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim: %w", types.ErrUnauthorized)
	}

	return userId, nil
}

// CredentialFromRequest extracts a bearer token from the Authorization
// header, falling back to the session cookie.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil {
		return c.Value
	}

	return ""
}

func CreateJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     TokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
