// Package controller drives a quiz session as a state machine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/quiz"
	"github.com/pavelanni/quizclient/internal/timer"
)

// ErrInvalidChoice is returned when a selected choice does not belong to
// the question.
var ErrInvalidChoice = errors.New("choice does not belong to question")

// QuizService is the quiz data the controller needs.
type QuizService interface {
	GetQuizConfig(ctx context.Context) (model.QuizConfig, error)
	FetchQuizQuestions(ctx context.Context) ([]model.Question, error)
	SubmitQuizAnswers(ctx context.Context, sub model.Submission) (model.SubmissionResult, error)
}

// Authorizer answers who is logged in.
type Authorizer interface {
	IsStaff(ctx context.Context) bool
	Username() string
}

// SessionIDs yields the anonymous session identity.
type SessionIDs interface {
	ID(ctx context.Context) (string, error)
}

// Controller owns the session state. Every change goes through Dispatch.
type Controller struct {
	quiz  QuizService
	auth  Authorizer
	ids   SessionIDs
	tr    *i18n.Translator
	topts []timer.Option

	mu        sync.Mutex
	st        State
	countdown *timer.Countdown
	// phase to return to from admin or login
	back      Phase
	observers []func(State)
}

// Option configures a Controller.
type Option func(*Controller)

func WithTranslator(tr *i18n.Translator) Option {
	return func(c *Controller) { c.tr = tr }
}

// WithTimerOptions passes options to every countdown the controller creates.
func WithTimerOptions(opts ...timer.Option) Option {
	return func(c *Controller) { c.topts = append(c.topts, opts...) }
}

func New(quiz QuizService, auth Authorizer, ids SessionIDs, opts ...Option) *Controller {
	c := &Controller{
		quiz: quiz,
		auth: auth,
		ids:  ids,
		st: State{
			Phase:   PhaseStart,
			Answers: model.AnswerMap{},
		},
		back: PhaseStart,
	}
	for _, o := range opts {
		o(c)
	}
	c.st.Config = model.QuizConfig{TimerDuration: model.DefaultTimerMinutes, IsActive: true}
	c.countdown = timer.New(c.st.Config.DurationSeconds(), nil, c.topts...)
	return c
}

// OnChange registers an observer called with a snapshot after every state
// change. Observers run inside Dispatch and must not call Dispatch.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Remaining returns the seconds left on the countdown.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	cd := c.countdown
	c.mu.Unlock()
	return cd.Remaining()
}

// Dispatch applies one event. Events that do not apply to the current phase
// are ignored. Failures of the quiz service show up in State.Error.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slog.Debug("dispatch", "event", fmt.Sprintf("%T", ev), "phase", c.st.Phase)
	switch e := ev.(type) {
	case Init:
		if c.st.Phase == PhaseStart {
			c.init(ctx)
		}
	case Start:
		c.start(ctx)
	case SetUsername:
		if c.st.Phase == PhaseStart {
			c.st.Username = strings.TrimSpace(e.Name)
			c.notify()
		}
	case Select:
		return c.selectChoice(e)
	case Next:
		c.next(ctx)
	case Previous:
		if c.st.Phase == PhaseActive && c.st.Current > 0 {
			c.st.Current--
			c.notify()
		}
	case Submit:
		c.submit(ctx)
	case Expire:
		if c.st.Phase != PhaseActive {
			slog.Debug("ignoring expiry outside active quiz", "phase", c.st.Phase)
			return nil
		}
		slog.Info("time is up, submitting")
		c.submit(ctx)
	case ShowAdmin:
		c.showAdmin(ctx)
	case AdminLoggedIn:
		c.adminLoggedIn(ctx)
	case BackToQuiz:
		if c.st.Phase == PhaseAdmin || c.st.Phase == PhaseLogin {
			c.st.Error = ""
			c.setPhase(c.back)
		}
	case Retry:
		c.retry(ctx)
	case Restart:
		c.restart()
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
	return nil
}

func (c *Controller) init(ctx context.Context) {
	cfg, err := c.quiz.GetQuizConfig(ctx)
	if err != nil {
		slog.Error("failed to load quiz config", "error", err)
		c.st.Error = c.tr.T("ConfigLoadFailed")
		c.notify()
		return
	}
	c.st.Config = cfg
	// Start reuses these; a failure here is retried there.
	qs, err := c.quiz.FetchQuizQuestions(ctx)
	if err != nil {
		slog.Warn("failed to load questions", "error", err)
		qs = nil
	}
	c.st.Questions = qs
	c.st.QuestionsCount = len(qs)
	c.rebuildCountdown(ctx)
	c.notify()
}

func (c *Controller) start(ctx context.Context) {
	if c.st.Phase != PhaseStart {
		return
	}
	if !c.st.Config.IsActive {
		c.st.Error = c.tr.T("QuizUnavailable")
		c.notify()
		return
	}
	c.st.Error = ""
	c.setPhase(PhaseLoading)
	if !c.loadQuestions(ctx) {
		c.setPhase(PhaseStart)
		return
	}
	c.rebuildCountdown(ctx)
	c.countdown.Start()
	slog.Info("quiz started", "questions", len(c.st.Questions), "seconds", c.countdown.Initial())
	c.setPhase(PhaseActive)
}

// loadQuestions prepares a fresh attempt, fetching the questions unless
// Init already did.
func (c *Controller) loadQuestions(ctx context.Context) bool {
	qs := c.st.Questions
	if len(qs) == 0 {
		var err error
		qs, err = c.quiz.FetchQuizQuestions(ctx)
		if err == nil && len(qs) == 0 {
			err = errors.New("no questions")
		}
		if err != nil {
			slog.Error("failed to load questions", "error", err)
			c.st.Error = c.tr.T("LoadQuestionsFailed")
			return false
		}
	}
	c.st.Questions = qs
	c.st.QuestionsCount = len(qs)
	c.st.Answers = model.AnswerMap{}
	c.st.Current = 0
	c.st.Result = nil
	return true
}

func (c *Controller) selectChoice(e Select) error {
	if c.st.Phase != PhaseActive {
		return nil
	}
	for _, q := range c.st.Questions {
		if q.ID != e.QuestionID {
			continue
		}
		if _, ok := q.Choice(e.ChoiceID); !ok {
			return fmt.Errorf("%w: question %d, choice %d", ErrInvalidChoice, e.QuestionID, e.ChoiceID)
		}
		c.st.Answers[e.QuestionID] = e.ChoiceID
		c.notify()
		return nil
	}
	return fmt.Errorf("%w: unknown question %d", ErrInvalidChoice, e.QuestionID)
}

func (c *Controller) next(ctx context.Context) {
	if c.st.Phase != PhaseActive {
		return
	}
	if c.st.Current < len(c.st.Questions)-1 {
		c.st.Current++
		c.notify()
		return
	}
	c.submit(ctx)
}

func (c *Controller) submit(ctx context.Context) {
	if c.st.Phase != PhaseActive {
		return
	}
	c.countdown.Stop()
	elapsed := c.countdown.Initial() - c.countdown.Remaining()
	c.st.Error = ""
	c.setPhase(PhaseLoading)

	sessionID, err := c.ids.ID(ctx)
	if err != nil {
		slog.Warn("no session id for submission", "error", err)
	}
	username := c.auth.Username()
	if username == "" {
		username = c.st.Username
	}

	res, err := c.quiz.SubmitQuizAnswers(ctx, model.Submission{
		Answers:   maps.Clone(c.st.Answers),
		TimeTaken: elapsed,
		SessionID: sessionID,
		Username:  username,
		Questions: c.st.Questions,
	})
	if err != nil {
		slog.Error("failed to submit answers", "error", err)
		c.st.Error = c.tr.T("SubmitFailed")
		var se *quiz.StatusError
		if errors.As(err, &se) && se.Message != "" {
			c.st.Error = se.Message
		}
		c.setPhase(PhaseActive)
		return
	}
	slog.Info("quiz submitted", "score", res.Score, "percentage", res.Percentage, "fallback", res.Fallback)
	c.st.Result = &res
	c.setPhase(PhaseResults)
}

func (c *Controller) showAdmin(ctx context.Context) {
	if c.st.Phase != PhaseStart && c.st.Phase != PhaseResults {
		return
	}
	c.back = c.st.Phase
	c.st.Error = ""
	if c.auth.IsStaff(ctx) {
		c.setPhase(PhaseAdmin)
		return
	}
	c.setPhase(PhaseLogin)
}

func (c *Controller) adminLoggedIn(ctx context.Context) {
	if c.st.Phase != PhaseLogin {
		return
	}
	if !c.auth.IsStaff(ctx) {
		c.st.Error = c.tr.T("StaffRequired")
		c.notify()
		return
	}
	c.st.Error = ""
	c.setPhase(PhaseAdmin)
}

func (c *Controller) retry(ctx context.Context) {
	if c.st.Error == "" {
		return
	}
	c.st.Error = ""
	switch {
	case c.st.Phase == PhaseStart:
		c.init(ctx)
		if c.st.Error == "" {
			c.start(ctx)
		}
	case c.st.Phase == PhaseActive && len(c.st.Questions) > 0:
		c.submit(ctx)
	case c.st.Phase == PhaseActive:
		if c.loadQuestions(ctx) {
			c.countdown.Start()
		}
		c.notify()
	default:
		c.notify()
	}
}

func (c *Controller) restart() {
	c.countdown.Reset()
	c.st.Answers = model.AnswerMap{}
	c.st.Questions = nil
	c.st.Result = nil
	c.st.Error = ""
	c.st.Username = ""
	c.st.Current = 0
	c.back = PhaseStart
	c.setPhase(PhaseStart)
}

// rebuildCountdown replaces the countdown with one of the configured
// duration. Expiry dispatches Expire with ctx.
func (c *Controller) rebuildCountdown(ctx context.Context) {
	c.countdown.Stop()
	c.countdown = timer.New(c.st.Config.DurationSeconds(), func() {
		if err := c.Dispatch(ctx, Expire{}); err != nil {
			slog.Error("expiry dispatch failed", "error", err)
		}
	}, c.topts...)
}

func (c *Controller) setPhase(p Phase) {
	if c.st.Phase != p {
		slog.Debug("phase change", "from", c.st.Phase, "to", p)
	}
	c.st.Phase = p
	c.notify()
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.snapshot()
	for _, fn := range c.observers {
		fn(snap)
	}
}

func (c *Controller) snapshot() State {
	s := c.st.clone()
	s.Remaining = c.countdown.Remaining()
	s.TimeLeft = timer.Format(s.Remaining)
	return s
}
