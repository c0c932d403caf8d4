package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pavelanni/quizclient/internal/model"
)

// Session tracks who is logged in on top of a Client.
type Session struct {
	client *Client

	mu   sync.RWMutex
	user *model.User
}

func NewSession(client *Client) *Session {
	return &Session{client: client}
}

// Client returns the underlying auth client.
func (s *Session) Client() *Client {
	return s.client
}

// Restore loads the profile when tokens are stored. Tokens the server no
// longer accepts are cleared.
func (s *Session) Restore(ctx context.Context) error {
	if !s.client.tokens.IsAuthenticated(ctx) {
		return nil
	}
	u, err := s.client.GetProfile(ctx)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) && aerr.Status == http.StatusUnauthorized {
			slog.Info("stored tokens rejected, clearing")
			if cerr := s.client.tokens.Clear(ctx); cerr != nil {
				return cerr
			}
			return nil
		}
		return err
	}
	s.setUser(u)
	return nil
}

func (s *Session) Login(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

// Register creates the account and logs in with the same credentials.
func (s *Session) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if _, err := s.client.Register(ctx, reg); err != nil {
		return nil, err
	}
	return s.Login(ctx, reg.Username, reg.Password)
}

func (s *Session) Logout(ctx context.Context) error {
	s.setUser(nil)
	return s.client.Logout(ctx)
}

func (s *Session) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error) {
	u, err := s.client.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

// ChangePassword validates the confirmation before calling the server.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if err := ValidateNewPassword(s.client.tr, newPassword, confirm); err != nil {
		return err
	}
	return s.client.ChangePassword(ctx, oldPassword, newPassword)
}

// User returns the logged-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// IsStaff asks the server, so a revoked staff flag is noticed.
func (s *Session) IsStaff(ctx context.Context) bool {
	if !s.client.tokens.IsAuthenticated(ctx) {
		return false
	}
	u, err := s.client.GetProfile(ctx)
	if err != nil {
		slog.Debug("staff check failed", "error", err)
		return false
	}
	s.setUser(u)
	return u.IsStaff
}

// Username returns the logged-in username, or "".
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.Username
}

func (s *Session) setUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}
