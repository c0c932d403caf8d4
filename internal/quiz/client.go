package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pavelanni/quizclient/internal/model"
)

// Endpoint paths, relative to the base URL.
const (
	PathQuestions     = "/quiz/"
	PathConfig        = "/quiz/config/"
	PathConfigUpdate  = "/quiz/config/update/"
	PathSubmit        = "/quiz/submit/"
	PathAttempts      = "/admin/attempts/"
	PathStats         = "/admin/stats/"
	PathQuestionStats = "/admin/question-stats/"
	PathHealth        = "/health"
)

// Defaults for the request policy.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultStatsTimeout = 60 * time.Second
	DefaultRetryDelay   = time.Second
	DefaultRetries      = 2
	DefaultStatsRetries = 1
)

// ErrBackendUnavailable wraps read failures when fallback data is disabled.
var ErrBackendUnavailable = errors.New("quiz backend unavailable")

// StatusError is a non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("status %d", e.Status)
}

// Client reads and writes quiz data. Failed reads degrade to local data.
type Client struct {
	baseURL      string
	http         *http.Client
	timeout      time.Duration
	statsTimeout time.Duration
	retryDelay   time.Duration
	retries      uint64
	statsRetries uint64
	fallback     bool
	metrics      *Metrics

	mu     sync.Mutex
	status model.BackendStatus
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, typically one whose transport
// attaches auth tokens.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithStatsTimeout(d time.Duration) Option {
	return func(c *Client) { c.statsTimeout = d }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithRetries sets the timeout retries for standard and statistics requests.
func WithRetries(standard, stats uint64) Option {
	return func(c *Client) {
		c.retries = standard
		c.statsRetries = stats
	}
}

// WithFallback turns fallback data on or off. When off, read failures
// are returned as errors wrapping ErrBackendUnavailable.
func WithFallback(enabled bool) Option {
	return func(c *Client) { c.fallback = enabled }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		timeout:      DefaultTimeout,
		statsTimeout: DefaultStatsTimeout,
		retryDelay:   DefaultRetryDelay,
		retries:      DefaultRetries,
		statsRetries: DefaultStatsRetries,
		fallback:     true,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	c.status = model.BackendStatus{
		Healthy:   true,
		BaseURL:   c.baseURL,
		Timeout:   c.timeout,
		Endpoints: endpoints(),
	}
	return c
}

func endpoints() map[string]string {
	return map[string]string{
		"questions":      PathQuestions,
		"config":         PathConfig,
		"config_update":  PathConfigUpdate,
		"submit":         PathSubmit,
		"attempts":       PathAttempts,
		"stats":          PathStats,
		"question_stats": PathQuestionStats,
		"health":         PathHealth,
	}
}

// GetQuizConfig returns the quiz configuration or DefaultConfig.
func (c *Client) GetQuizConfig(ctx context.Context) (model.QuizConfig, error) {
	var cfg model.QuizConfig
	err := c.call(ctx, "config", http.MethodGet, PathConfig, nil, &cfg, c.timeout, c.retries)
	if err != nil {
		return degrade(ctx, c, "config", err, DefaultConfig())
	}
	c.healthy()
	return cfg, nil
}

// FetchQuizQuestions returns the questions or the fallback set. An empty
// list counts as a failure.
func (c *Client) FetchQuizQuestions(ctx context.Context) ([]model.Question, error) {
	var qs []model.Question
	err := c.call(ctx, "questions", http.MethodGet, PathQuestions, nil, &qs, c.timeout, c.retries)
	if err == nil && len(qs) == 0 {
		err = errors.New("empty question list")
	}
	if err != nil {
		return degrade(ctx, c, "questions", err, FallbackQuestions())
	}
	c.healthy()
	return qs, nil
}

// GetQuestionsCount returns how many questions the quiz has.
func (c *Client) GetQuestionsCount(ctx context.Context) (int, error) {
	qs, err := c.FetchQuizQuestions(ctx)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// SubmitQuizAnswers submits answers for server scoring. When the backend
// cannot be reached the answers are scored locally against sub.Questions
// when they carry an answer key, otherwise against the fallback questions.
// A submission the backend rejects, such as one over the attempt limit,
// returns the *StatusError.
func (c *Client) SubmitQuizAnswers(ctx context.Context, sub model.Submission) (model.SubmissionResult, error) {
	if sub.Answers == nil {
		sub.Answers = model.AnswerMap{}
	}
	var res model.SubmissionResult
	err := c.call(ctx, "submit", http.MethodPost, PathSubmit, sub, &res, c.timeout, c.retries)
	if err == nil {
		c.healthy()
		return res, nil
	}
	if rejected(err) {
		c.healthy()
		slog.Warn("quiz submission rejected", "error", err)
		return model.SubmissionResult{}, fmt.Errorf("submit answers: %w", err)
	}

	key := sub.Questions
	if !HasAnswerKey(key) {
		key = FallbackQuestions()
	}
	local := Evaluate(key, sub.Answers, sub.TimeTaken)
	local.Fallback = true
	return degrade(ctx, c, "submit", err, local)
}

// GetQuizAttempts returns recorded attempts or an empty list.
func (c *Client) GetQuizAttempts(ctx context.Context) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := c.call(ctx, "attempts", http.MethodGet, PathAttempts, nil, &attempts, c.timeout, c.retries)
	if err != nil {
		return degrade(ctx, c, "attempts", err, []model.Attempt{})
	}
	c.healthy()
	return attempts, nil
}

// GetQuizStats returns aggregate statistics or zeroed ones. It uses the
// longer statistics timeout.
func (c *Client) GetQuizStats(ctx context.Context) (model.QuizStats, error) {
	var stats model.QuizStats
	err := c.call(ctx, "stats", http.MethodGet, PathStats, nil, &stats, c.statsTimeout, c.statsRetries)
	if err != nil {
		return degrade(ctx, c, "stats", err, model.QuizStats{})
	}
	c.healthy()
	return stats, nil
}

// GetQuestionStats returns per-question accuracy or an empty list.
func (c *Client) GetQuestionStats(ctx context.Context) ([]model.QuestionStat, error) {
	var stats []model.QuestionStat
	err := c.call(ctx, "question_stats", http.MethodGet, PathQuestionStats, nil, &stats, c.timeout, c.retries)
	if err != nil {
		return degrade(ctx, c, "question_stats", err, []model.QuestionStat{})
	}
	c.healthy()
	return stats, nil
}

// UpdateQuizConfig saves the configuration. Failures are returned.
func (c *Client) UpdateQuizConfig(ctx context.Context, cfg model.QuizConfig) (model.QuizConfig, error) {
	var out model.QuizConfig
	if err := c.call(ctx, "config_update", http.MethodPost, PathConfigUpdate, cfg, &out, c.timeout, c.retries); err != nil {
		c.unhealthy(err)
		return model.QuizConfig{}, fmt.Errorf("update quiz config: %w", err)
	}
	c.healthy()
	return out, nil
}

// CheckHealth pings the backend and returns the updated status.
func (c *Client) CheckHealth(ctx context.Context) model.BackendStatus {
	err := c.call(ctx, "health", http.MethodGet, PathHealth, nil, nil, c.timeout, 0)
	if err != nil {
		c.unhealthy(err)
	} else {
		c.mu.Lock()
		c.status.Healthy = true
		c.status.LastError = ""
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.status.CheckedAt = time.Now()
	c.mu.Unlock()
	return c.Status()
}

// Status returns the last observed backend state.
func (c *Client) Status() model.BackendStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.Endpoints = make(map[string]string, len(c.status.Endpoints))
	for k, v := range c.status.Endpoints {
		st.Endpoints[k] = v
	}
	return st
}

// degrade records a failed call and returns the fallback value, or the
// error when fallback is disabled or the caller gave up.
func degrade[T any](ctx context.Context, c *Client, op string, err error, fallback T) (T, error) {
	c.unhealthy(err)
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if !c.fallback {
		return zero, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
	}
	slog.Warn("quiz backend request failed, serving fallback data", "operation", op, "error", err)
	c.metrics.Fallbacks.WithLabelValues(op).Inc()
	c.mu.Lock()
	c.status.Degraded = true
	c.mu.Unlock()
	return fallback, nil
}

func (c *Client) healthy() {
	c.mu.Lock()
	c.status.Healthy = true
	c.status.Degraded = false
	c.status.LastError = ""
	c.mu.Unlock()
}

func (c *Client) unhealthy(err error) {
	c.mu.Lock()
	c.status.Healthy = false
	c.status.LastError = err.Error()
	c.mu.Unlock()
}

// call performs one logical request. Only timeouts are retried, with a
// constant delay, up to retries extra attempts.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any, timeout time.Duration, retries uint64) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return backoff.Permanent(fmt.Errorf("encode %s request: %w", op, err))
		}
	}

	attempt := func() error {
		err := c.once(ctx, method, path, payload, out, timeout)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && isTimeout(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.Retries.WithLabelValues(op).Inc()
		slog.Warn("quiz request timed out, retrying", "operation", op, "delay", wait, "error", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), retries), ctx)
	return backoff.RetryNotify(attempt, policy, notify)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Message: errorField(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return err
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// rejected reports whether the backend refused the request on purpose: a
// 4xx other than 404 and 408 carrying an error message.
func rejected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.Message == "" {
		return false
	}
	switch {
	case se.Status == http.StatusNotFound, se.Status == http.StatusRequestTimeout:
		return false
	default:
		return se.Status >= 400 && se.Status < 500
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func errorField(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || json.Unmarshal(data, &payload) != nil {
		return ""
	}
	return payload.Error
}
