package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Endpoint paths of the auth API, relative to the base URL.
const (
	PathRegister       = "/auth/register/"
	PathLogin          = "/auth/login/"
	PathRefresh        = "/auth/refresh/"
	PathLogout         = "/auth/logout/"
	PathProfile        = "/auth/profile/"
	PathProfileUpdate  = "/auth/profile/update/"
	PathChangePassword = "/auth/change-password/"
)

// Transport attaches the bearer access token to every request and, on a 401,
// exchanges the refresh token for a new access token and replays the request
// once. A rejected refresh clears the stored tokens.
type Transport struct {
	base       http.RoundTripper
	tokens     *TokenStore
	refreshURL string
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(baseURL string, tokens *TokenStore, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:       base,
		tokens:     tokens,
		refreshURL: strings.TrimRight(baseURL, "/") + PathRefresh,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access, err := t.tokens.Access(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	resp, err := t.base.RoundTrip(withBearer(req, access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.URL.String() == t.refreshURL {
		return resp, nil
	}
	// A consumed body without GetBody cannot be replayed.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	refresh, err := t.tokens.Refresh(ctx)
	if err != nil || refresh == "" {
		return resp, nil
	}
	drain(resp)

	newAccess, err := t.refresh(ctx, refresh)
	if err != nil {
		slog.Warn("token refresh failed, clearing tokens", "error", err)
		if cerr := t.tokens.Clear(ctx); cerr != nil {
			slog.Error("failed to clear tokens", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if err := t.tokens.SetAccess(ctx, newAccess); err != nil {
		return nil, fmt.Errorf("store access token: %w", err)
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		retry.Body = body
	}
	slog.Debug("retrying request with refreshed token", "url", req.URL.String())
	return t.base.RoundTrip(withBearer(retry, newAccess))
}

func (t *Transport) refresh(ctx context.Context, refresh string) (string, error) {
	body, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var payload struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.Access == "" {
		return "", fmt.Errorf("refresh response has no access token")
	}
	return payload.Access, nil
}

func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}
	return r
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
