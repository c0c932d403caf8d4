// Package devserver implements the quiz backend HTTP API in memory. It is
// meant for local runs and integration tests.
package devserver

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/quiz"
)

// Config holds the server settings.
type Config struct {
	// Prefix is the path the API is mounted under, e.g. "/api".
	Prefix        string
	Secret        []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AdminUser     string
	AdminPassword string
	// Latency delays every API response, to exercise client timeouts.
	Latency    time.Duration
	Questions  []model.Question
	QuizConfig model.QuizConfig
	Translator *i18n.Translator
}

func (c *Config) defaults() error {
	if c.Prefix == "" {
		c.Prefix = "/api"
	}
	if len(c.Secret) == 0 {
		c.Secret = make([]byte, 32)
		if _, err := rand.Read(c.Secret); err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = 5 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 24 * time.Hour
	}
	if c.AdminUser == "" {
		c.AdminUser = "admin"
	}
	if c.AdminPassword == "" {
		c.AdminPassword = "adminpass"
	}
	if len(c.Questions) == 0 {
		c.Questions = QuestionBank()
	}
	if c.QuizConfig == (model.QuizConfig{}) {
		c.QuizConfig = quiz.DefaultConfig()
	}
	if c.Translator == nil {
		c.Translator = i18n.Default()
	}
	return nil
}

type account struct {
	user model.User
	hash []byte
}

// Server holds the in-memory backend state.
type Server struct {
	cfg      Config
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	submits  prometheus.Counter

	mu       sync.Mutex
	accounts map[string]*account // by username
	nextUser int64
	revoked  map[string]bool // refresh token IDs
	quizCfg  model.QuizConfig
	attempts []model.Attempt
	// per question ID: answered, correct
	answered map[int64]int
	correct  map[int64]int
}

// New creates a server with a seeded staff account.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		accounts: make(map[string]*account),
		revoked:  make(map[string]bool),
		quizCfg:  cfg.QuizConfig,
		answered: make(map[int64]int),
		correct:  make(map[int64]int),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizdev",
		Name:      "http_requests_total",
		Help:      "API requests by route pattern and status.",
	}, []string{"route", "status"})
	s.submits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quizdev",
		Name:      "submissions_total",
		Help:      "Quiz submissions scored by the server.",
	})
	s.registry.MustRegister(s.requests, s.submits)

	if _, err := s.createAccount(model.Registration{
		Username: cfg.AdminUser,
		Password: cfg.AdminPassword,
	}, true); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("seeded admin account", "username", cfg.AdminUser)
	return s, nil
}

// Registry returns the server's metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the complete router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(i18n.Middleware(s.cfg.Translator))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Route(s.cfg.Prefix, func(api chi.Router) {
		api.Use(s.countRequests)
		api.Use(s.latency)
		s.Routes(api)
	})
	return r
}

// Routes registers the API routes.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Post("/auth/register/", s.handleRegister)
	r.Post("/auth/login/", s.handleLogin)
	r.Post("/auth/refresh/", s.handleRefresh)
	r.Post("/auth/logout/", s.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/profile/", s.handleProfile)
		r.Post("/auth/profile/update/", s.handleProfileUpdate)
		r.Post("/auth/change-password/", s.handleChangePassword)
	})

	r.Get("/quiz/", s.handleQuestions)
	r.Get("/quiz/config/", s.handleConfig)
	r.With(s.optionalAuth).Post("/quiz/submit/", s.handleSubmit)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth, requireStaff)
		r.Post("/quiz/config/update/", s.handleConfigUpdate)
		r.Get("/admin/attempts/", s.handleAttempts)
		r.Get("/admin/stats/", s.handleStats)
		r.Get("/admin/question-stats/", s.handleQuestionStats)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		s.requests.WithLabelValues(route, fmt.Sprint(ww.Status())).Inc()
	})
}

func (s *Server) latency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createAccount(reg model.Registration, staff bool) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[reg.Username]; ok {
		return nil, errUsernameTaken
	}
	s.nextUser++
	acc := &account{
		user: model.User{
			ID:        s.nextUser,
			Username:  reg.Username,
			Email:     reg.Email,
			FirstName: reg.FirstName,
			LastName:  reg.LastName,
			IsStaff:   staff,
		},
		hash: hash,
	}
	s.accounts[reg.Username] = acc
	u := acc.user
	return &u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends {"error": msg} with msg translated for the request.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": i18n.FromContext(r.Context()).T(msgID)})
}
