package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-workspace-chat/internal/attachments"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewRequestTooLargeError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Message:    lower(http.StatusText(http.StatusRequestEntityTooLarge)),
	}
}

// FromError maps a domain error onto the matching ApiError. Anything that is
// not a request error is reported as an internal error.
func FromError(err error) *ApiError {
	var (
		apiErr  *ApiError
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, attachments.ErrTooLarge), errors.As(err, &sizeErr):
		return NewRequestTooLargeError()
	case errors.Is(err, types.ErrUnauthorized):
		return NewUnauthorizedError()
	case errors.Is(err, types.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, types.ErrBadRequest):
		return NewBadRequestError()
	case errors.Is(err, types.ErrNotFound):
		return NewNotFoundError()
	default:
		return NewInternalServerError(err)
	}
}
