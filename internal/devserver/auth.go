package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizclient/internal/auth"
	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var errUsernameTaken = errors.New("username taken")

type claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *Server) issue(u model.User, typ string, ttl time.Duration) (string, error) {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return "", err
	}
	now := time.Now()
	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			ID:        hex.EncodeToString(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
}

func (s *Server) parse(token, typ string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if c.Type != typ {
		return nil, errors.New("wrong token type")
	}
	return c, nil
}

func (s *Server) issuePair(u model.User) (model.Tokens, error) {
	access, err := s.issue(u, tokenAccess, s.cfg.AccessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, err := s.issue(u, tokenRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{Access: access, Refresh: refresh}, nil
}

// userFromBearer resolves the access token of r, or nil.
func (s *Server) userFromBearer(r *http.Request) *model.User {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	c, err := s.parse(token, tokenAccess)
	if err != nil {
		slog.Debug("rejected access token", "error", err)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[c.Subject]
	if !ok {
		return nil
	}
	u := acc.user
	return &u
}

// requireAuth rejects requests without a valid access token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := s.userFromBearer(r)
		if u == nil {
			writeError(w, r, http.StatusUnauthorized, "InvalidToken")
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), u)))
	})
}

// optionalAuth attaches the user when a valid token is present.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := s.userFromBearer(r); u != nil {
			r = r.WithContext(model.ContextWithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := model.UserFromContext(r.Context())
		if u == nil || !u.IsStaff {
			writeError(w, r, http.StatusForbidden, "StaffOnly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	reg.Username = strings.TrimSpace(reg.Username)
	if reg.Username == "" {
		writeError(w, r, http.StatusBadRequest, "UsernameRequired")
		return
	}
	if len(reg.Password) < auth.MinPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": passwordTooShort(r)})
		return
	}
	u, err := s.createAccount(reg, false)
	if errors.Is(err, errUsernameTaken) {
		writeError(w, r, http.StatusBadRequest, "UsernameTaken")
		return
	}
	if err != nil {
		slog.Error("failed to create account", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	slog.Info("registered user", "username", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	s.mu.Lock()
	var user model.User
	var hash []byte
	acc, ok := s.accounts[body.Username]
	if ok {
		user, hash = acc.user, acc.hash
	}
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(body.Password)) != nil {
		writeError(w, r, http.StatusUnauthorized, "InvalidCredentials")
		return
	}

	tokens, err := s.issuePair(user)
	if err != nil {
		slog.Error("failed to issue tokens", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	c, err := s.parse(body.Refresh, tokenRefresh)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "InvalidToken")
		return
	}

	s.mu.Lock()
	var user model.User
	acc, ok := s.accounts[c.Subject]
	if ok {
		user = acc.user
	}
	revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if !ok || revoked {
		writeError(w, r, http.StatusUnauthorized, "InvalidToken")
		return
	}

	access, err := s.issue(user, tokenAccess, s.cfg.AccessTTL)
	if err != nil {
		slog.Error("failed to issue access token", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	c, err := s.parse(body.Refresh, tokenRefresh)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidToken")
		return
	}
	s.mu.Lock()
	s.revoked[c.ID] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": model.UserFromContext(r.Context())})
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var upd model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	username := model.UserFromContext(r.Context()).Username

	s.mu.Lock()
	acc := s.accounts[username]
	if upd.Email != "" {
		acc.user.Email = upd.Email
	}
	if upd.FirstName != "" {
		acc.user.FirstName = upd.FirstName
	}
	if upd.LastName != "" {
		acc.user.LastName = upd.LastName
	}
	u := acc.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if len(body.New) < auth.MinPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": passwordTooShort(r)})
		return
	}
	username := model.UserFromContext(r.Context()).Username

	s.mu.Lock()
	acc := s.accounts[username]
	current := acc.hash
	s.mu.Unlock()
	if bcrypt.CompareHashAndPassword(current, []byte(body.Old)) != nil {
		writeError(w, r, http.StatusBadRequest, "WrongPassword")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.New), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	s.mu.Lock()
	acc.hash = hash
	s.mu.Unlock()
	slog.Info("password changed", "username", username)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func passwordTooShort(r *http.Request) string {
	return i18n.FromContext(r.Context()).Td("PasswordTooShort", map[string]any{"Min": auth.MinPasswordLength})
}
