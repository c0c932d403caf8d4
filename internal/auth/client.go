package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
)

// DefaultTimeout bounds every auth request.
const DefaultTimeout = 30 * time.Second

// Client talks to the auth endpoints of the quiz backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
	tr      *i18n.Translator
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport should be a
// *Transport so requests carry the bearer token.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTranslator sets the language of fallback messages.
func WithTranslator(tr *i18n.Translator) ClientOption {
	return func(c *Client) { c.tr = tr }
}

func NewClient(baseURL string, tokens *TokenStore, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: NewTransport(baseURL, tokens, nil),
			Timeout:   DefaultTimeout,
		}
	}
	if c.tr == nil {
		c.tr = i18n.Default()
	}
	return c
}

// Tokens returns the token store the client writes to.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// Register creates an account. The form is validated before any request.
func (c *Client) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := ValidateRegistration(c.tr, reg); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, PathRegister, reg, &raw, "RegistrationFailed"); err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	var resp struct {
		User   model.User   `json:"user"`
		Tokens model.Tokens `json:"tokens"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, PathLogin, body, &resp, "LoginFailed"); err != nil {
		return nil, err
	}
	if resp.Tokens.Access == "" {
		return nil, &Error{Message: c.tr.T("LoginFailed"), Err: errors.New("login response has no tokens")}
	}
	if err := c.tokens.SetTokens(ctx, resp.Tokens.Access, resp.Tokens.Refresh); err != nil {
		return nil, err
	}
	slog.Info("logged in", "username", resp.User.Username, "staff", resp.User.IsStaff)
	return &resp.User, nil
}

// Logout revokes the refresh token on the server, best effort, and always
// clears the local tokens.
func (c *Client) Logout(ctx context.Context) error {
	refresh, err := c.tokens.Refresh(ctx)
	if err == nil && refresh != "" {
		body := map[string]string{"refresh": refresh}
		if err := c.do(ctx, http.MethodPost, PathLogout, body, nil, "LogoutFailed"); err != nil {
			slog.Warn("logout request failed", "error", err)
		}
	}
	if err := c.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// GetProfile returns the current user.
func (c *Client) GetProfile(ctx context.Context) (*model.User, error) {
	if !c.tokens.IsAuthenticated(ctx) {
		return nil, &Error{Status: http.StatusUnauthorized, Message: c.tr.T("NotAuthenticated"), Err: ErrNotAuthenticated}
	}
	var resp struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, PathProfile, nil, &resp, "ProfileFetchFailed"); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// UpdateProfile saves profile fields and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error) {
	var resp struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, PathProfileUpdate, update, &resp, "ProfileUpdateFailed"); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// ChangePassword replaces the password. The new password is length-checked
// before any request.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := validateLength(c.tr, newPassword); err != nil {
		return err
	}
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, PathChangePassword, body, nil, "PasswordChangeFailed")
}

// IsStaff reports whether the current user is staff. Any failure means no.
func (c *Client) IsStaff(ctx context.Context) bool {
	u, err := c.GetProfile(ctx)
	if err != nil {
		return false
	}
	return u.IsStaff
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, fallbackMsg string) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", c.tr.Lang())

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return &Error{Status: http.StatusUnauthorized, Message: c.tr.T("SessionExpired"), Err: ErrSessionExpired}
		}
		slog.Debug("auth request failed", "path", path, "error", err)
		return &Error{Message: c.tr.T(fallbackMsg), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ServerMessage(resp)
		if msg == "" {
			msg = c.tr.T(fallbackMsg)
		}
		return &Error{Status: resp.StatusCode, Message: msg, Err: fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Status: resp.StatusCode, Message: c.tr.T(fallbackMsg), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeUser accepts either {"user": {...}} or a bare user object.
func decodeUser(raw json.RawMessage) (*model.User, error) {
	var wrapped struct {
		User *model.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}
