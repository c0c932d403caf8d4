package controller

import (
	"maps"
	"slices"

	"github.com/pavelanni/quizclient/internal/model"
)

// Phase is the screen the quiz session is on.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseLoading Phase = "loading"
	PhaseActive  Phase = "active"
	PhaseResults Phase = "results"
	PhaseAdmin   Phase = "admin"
	// PhaseLogin asks for staff credentials before the admin panel.
	PhaseLogin Phase = "login"
)

// State is a snapshot of a quiz session. Error, when set, overlays the
// current phase.
type State struct {
	Phase          Phase
	Config         model.QuizConfig
	QuestionsCount int
	Questions      []model.Question
	Current        int
	Answers        model.AnswerMap
	Result         *model.SubmissionResult
	Username       string
	Error          string
	Remaining      int
	TimeLeft       string
}

// CurrentQuestion returns the question under the cursor.
func (s State) CurrentQuestion() (model.Question, bool) {
	if s.Current < 0 || s.Current >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Current], true
}

// Answered returns how many questions have an answer.
func (s State) Answered() int {
	return len(s.Answers)
}

func (s State) clone() State {
	out := s
	out.Questions = slices.Clone(s.Questions)
	out.Answers = maps.Clone(s.Answers)
	if s.Result != nil {
		r := *s.Result
		r.Results = slices.Clone(s.Result.Results)
		out.Result = &r
	}
	return out
}

// Event is an input to Dispatch.
type Event interface {
	event()
}

type (
	// Init loads the configuration and question count.
	Init struct{}
	// Start begins the quiz.
	Start struct{}
	// SetUsername sets the name used for anonymous submissions.
	SetUsername struct{ Name string }
	// Select answers a question.
	Select struct{ QuestionID, ChoiceID int64 }
	// Next moves forward, submitting after the last question.
	Next struct{}
	// Previous moves back.
	Previous struct{}
	// Submit ends the quiz.
	Submit struct{}
	// Expire is sent by the countdown.
	Expire struct{}
	// ShowAdmin opens the admin panel.
	ShowAdmin struct{}
	// AdminLoggedIn is sent after a login from the login prompt.
	AdminLoggedIn struct{}
	// BackToQuiz leaves the admin panel or login prompt.
	BackToQuiz struct{}
	// Retry recovers from the error overlay.
	Retry struct{}
	// Restart resets the session to the start screen.
	Restart struct{}
)

func (Init) event()          {}
func (Start) event()         {}
func (SetUsername) event()   {}
func (Select) event()        {}
func (Next) event()          {}
func (Previous) event()      {}
func (Submit) event()        {}
func (Expire) event()        {}
func (ShowAdmin) event()     {}
func (AdminLoggedIn) event() {}
func (BackToQuiz) event()    {}
func (Retry) event()         {}
func (Restart) event()       {}
