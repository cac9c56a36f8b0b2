package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-workspace-chat/internal/auth"
	"github.com/npezzotti/go-workspace-chat/internal/database"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that cannot rely on
// the cookie, such as websocket clients outside the browser.
type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *GoChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := auth.HashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		// unknown accounts look the same as bad passwords
		if errors.Is(err, types.ErrNotFound) {
			err = types.ErrUnauthorized
		}
		s.writeError(w, err)
		return
	}

	if !auth.VerifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.resolver.IssueToken(dbUser.Id, auth.DefaultExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, auth.CreateJwtCookie(token, auth.DefaultExpiration))

	s.writeJson(w, http.StatusOK, LoginResponse{User: toUser(dbUser), Token: token})
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one so the browser drops it
	http.SetCookie(w, auth.CreateJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}
