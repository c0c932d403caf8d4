package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	// ErrSessionExpired is returned when the refresh token was rejected and
	// local tokens have been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned when an operation needs a login.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Error is a failed auth operation with a message fit for the user.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServerMessage extracts the "error" field from a JSON error body.
func ServerMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
