package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/store"
)

// fakeBackend serves the auth endpoints. Only accessToken is accepted as a
// bearer; refresh succeeds when refreshOK is set.
type fakeBackend struct {
	accessToken string
	refreshOK   bool
	profileBody string

	profileCalls atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	registers    atomic.Int32
}

func (f *fakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Post(PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":   map[string]any{"id": 1, "username": body["username"], "isStaff": true},
			"tokens": map[string]string{"access": f.accessToken, "refresh": "refresh-1"},
		})
	})
	r.Post(PathRefresh, func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if !f.refreshOK {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token is invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": f.accessToken})
	})
	r.Post(PathLogout, func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Post(PathRegister, func(w http.ResponseWriter, r *http.Request) {
		f.registers.Add(1)
		var reg model.Registration
		_ = json.NewDecoder(r.Body).Decode(&reg)
		writeJSON(w, http.StatusCreated, map[string]any{"id": 2, "username": reg.Username})
	})
	r.Get(PathProfile, func(w http.ResponseWriter, r *http.Request) {
		f.profileCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+f.accessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.profileBody))
	})
	r.Post(PathProfileUpdate, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.accessToken {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		var upd model.ProfileUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{"id": 1, "username": "alice", "first_name": upd.FirstName},
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeBackend) (*Client, *TokenStore) {
	t.Helper()
	if f.profileBody == "" {
		f.profileBody = `{"user":{"id":1,"username":"alice","is_staff":false}}`
	}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	tokens := NewTokenStore(store.NewMemory())
	return NewClient(srv.URL, tokens), tokens
}

func TestTransportRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{accessToken: "fresh", refreshOK: true}
	c, tokens := newTestClient(t, f)
	if err := tokens.SetTokens(ctx, "stale", "refresh-1"); err != nil {
		t.Fatal(err)
	}

	u, err := c.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("username = %q, want alice", u.Username)
	}
	if got := f.profileCalls.Load(); got != 2 {
		t.Errorf("profile calls = %d, want 2 (original + one retry)", got)
	}
	if got := f.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if access, _ := tokens.Access(ctx); access != "fresh" {
		t.Errorf("access token = %q, want fresh", access)
	}
}

func TestTransportFailedRefreshClearsTokens(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{accessToken: "fresh", refreshOK: false}
	c, tokens := newTestClient(t, f)
	if err := tokens.SetTokens(ctx, "stale", "refresh-1"); err != nil {
		t.Fatal(err)
	}

	_, err := c.GetProfile(ctx)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("GetProfile error = %v, want ErrSessionExpired", err)
	}
	if got := f.profileCalls.Load(); got != 1 {
		t.Errorf("profile calls = %d, want 1 (no retry)", got)
	}
	if tokens.IsAuthenticated(ctx) {
		t.Error("tokens should be cleared after failed refresh")
	}
	if r, _ := tokens.Refresh(ctx); r != "" {
		t.Errorf("refresh token = %q, want empty", r)
	}
}

func TestTransportReplaysBody(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{accessToken: "fresh", refreshOK: true}
	c, tokens := newTestClient(t, f)
	if err := tokens.SetTokens(ctx, "stale", "refresh-1"); err != nil {
		t.Fatal(err)
	}

	u, err := c.UpdateProfile(ctx, model.ProfileUpdate{FirstName: "Alice"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FirstName != "Alice" {
		t.Errorf("first name = %q, want Alice", u.FirstName)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("stores tokens and normalizes staff", func(t *testing.T) {
		c, tokens := newTestClient(t, &fakeBackend{accessToken: "a1"})
		u, err := c.Login(ctx, "alice", "correct-horse")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if !u.IsStaff {
			t.Error("isStaff variant should set IsStaff")
		}
		if access, _ := tokens.Access(ctx); access != "a1" {
			t.Errorf("access = %q, want a1", access)
		}
		if refresh, _ := tokens.Refresh(ctx); refresh != "refresh-1" {
			t.Errorf("refresh = %q, want refresh-1", refresh)
		}
	})

	t.Run("server message surfaces", func(t *testing.T) {
		c, tokens := newTestClient(t, &fakeBackend{accessToken: "a1"})
		_, err := c.Login(ctx, "alice", "wrong")
		var aerr *Error
		if !errors.As(err, &aerr) {
			t.Fatalf("error = %T %v, want *Error", err, err)
		}
		if aerr.Message != "Invalid credentials" {
			t.Errorf("message = %q, want server message", aerr.Message)
		}
		if aerr.Status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", aerr.Status)
		}
		if tokens.IsAuthenticated(ctx) {
			t.Error("failed login should not store tokens")
		}
	})
}

func TestLogoutAlwaysClears(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{accessToken: "a1"}
	c, tokens := newTestClient(t, f)
	if err := tokens.SetTokens(ctx, "a1", "refresh-1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.logoutCalls.Load() != 1 {
		t.Errorf("logout calls = %d, want 1", f.logoutCalls.Load())
	}
	if tokens.IsAuthenticated(ctx) {
		t.Error("tokens should be cleared even when the server fails")
	}
}

func TestValidationBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{accessToken: "a1"}
	c, _ := newTestClient(t, f)

	tests := []struct {
		name  string
		reg   model.Registration
		field string
	}{
		{"missing username", model.Registration{Password: "longenough", ConfirmPassword: "longenough"}, "username"},
		{"mismatch", model.Registration{Username: "bob", Password: "longenough", ConfirmPassword: "different"}, "confirm_password"},
		{"too short", model.Registration{Username: "bob", Password: "short", ConfirmPassword: "short"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Register(ctx, tt.reg)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
	if f.registers.Load() != 0 {
		t.Errorf("register calls = %d, want 0", f.registers.Load())
	}

	var verr *ValidationError
	if err := c.ChangePassword(ctx, "old-password", "short"); !errors.As(err, &verr) {
		t.Errorf("ChangePassword error = %v, want *ValidationError", err)
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	t.Run("register logs in", func(t *testing.T) {
		f := &fakeBackend{accessToken: "a1"}
		c, tokens := newTestClient(t, f)
		s := NewSession(c)
		u, err := s.Register(ctx, model.Registration{
			Username: "carol", Password: "correct-horse", ConfirmPassword: "correct-horse",
		})
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if u.Username != "carol" || s.Username() != "carol" {
			t.Errorf("user = %q, session username = %q", u.Username, s.Username())
		}
		if !tokens.IsAuthenticated(ctx) {
			t.Error("register should leave the session logged in")
		}
	})

	t.Run("restore with valid tokens", func(t *testing.T) {
		f := &fakeBackend{accessToken: "a1", profileBody: `{"user":{"id":1,"username":"alice","staff":true}}`}
		c, tokens := newTestClient(t, f)
		_ = tokens.SetTokens(ctx, "a1", "refresh-1")
		s := NewSession(c)
		if err := s.Restore(ctx); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		if !s.IsAuthenticated() || s.Username() != "alice" {
			t.Errorf("restored user = %+v", s.User())
		}
		if !s.IsStaff(ctx) {
			t.Error("staff variant should be recognized")
		}
	})

	t.Run("restore clears rejected tokens", func(t *testing.T) {
		f := &fakeBackend{accessToken: "a1", refreshOK: false}
		c, tokens := newTestClient(t, f)
		_ = tokens.SetTokens(ctx, "stale", "refresh-1")
		s := NewSession(c)
		if err := s.Restore(ctx); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		if s.IsAuthenticated() || tokens.IsAuthenticated(ctx) {
			t.Error("rejected tokens should leave the session logged out")
		}
	})

	t.Run("not staff without tokens", func(t *testing.T) {
		c, _ := newTestClient(t, &fakeBackend{accessToken: "a1"})
		if NewSession(c).IsStaff(ctx) {
			t.Error("anonymous session should not be staff")
		}
	})
}

func TestAccessExpiry(t *testing.T) {
	if _, err := AccessExpiry("not-a-jwt"); err == nil {
		t.Error("malformed token should fail")
	}
	// {"alg":"none"}.{"exp":2000000000}
	tok := "eyJhbGciOiJub25lIn0.eyJleHAiOjIwMDAwMDAwMDB9."
	exp, err := AccessExpiry(tok)
	if err != nil {
		t.Fatalf("AccessExpiry: %v", err)
	}
	if exp.Unix() != 2000000000 {
		t.Errorf("exp = %d, want 2000000000", exp.Unix())
	}
}
