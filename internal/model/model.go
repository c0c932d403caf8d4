package model

import (
	"context"
	"encoding/json"
	"time"
)

// Choice is one selectable answer of a question.
type Choice struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// UnmarshalJSON accepts both "is_correct" and "correct" as the correctness marker.
func (c *Choice) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
		Correct   bool   `json:"correct"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Text = raw.Text
	c.IsCorrect = raw.IsCorrect || raw.Correct
	return nil
}

// Question is a multiple choice question with an ordered list of choices.
type Question struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Choices []Choice `json:"choices"`
}

// Choice returns the choice with the given ID.
func (q Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// CorrectChoice returns the first choice flagged as correct, if any.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c, true
		}
	}
	return Choice{}, false
}

// AnswerMap maps a question ID to the selected choice ID.
type AnswerMap map[int64]int64

// QuizConfig is the server-side quiz configuration.
type QuizConfig struct {
	TimerDuration          int  `json:"timer_duration"` // minutes
	IsActive               bool `json:"is_active"`
	MaxAttempts            int  `json:"max_attempts"`
	ShowResultsImmediately bool `json:"show_results_immediately"`
}

// DefaultTimerMinutes is used when the configuration carries no duration.
const DefaultTimerMinutes = 10

// DurationSeconds returns the timer length in seconds.
func (c QuizConfig) DurationSeconds() int {
	minutes := c.TimerDuration
	if minutes <= 0 {
		minutes = DefaultTimerMinutes
	}
	return minutes * 60
}

// User is the authenticated account as returned by the backend.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsStaff   bool   `json:"is_staff"`
}

// UnmarshalJSON folds the staff flag variants (is_staff, isStaff, staff) into IsStaff.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var raw struct {
		plain
		IsStaffCamel bool `json:"isStaff"`
		Staff        bool `json:"staff"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plain)
	u.IsStaff = u.IsStaff || raw.IsStaffCamel || raw.Staff
	return nil
}

// DisplayName returns the first name when set, otherwise the username.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// Tokens is an access/refresh token pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Registration holds the fields sent to the register endpoint.
type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
}

// ProfileUpdate holds editable profile fields.
type ProfileUpdate struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Submission is the payload of a quiz submit.
type Submission struct {
	Answers   AnswerMap `json:"answers"`
	TimeTaken int       `json:"time_taken"`
	SessionID string    `json:"session_id"`
	Username  string    `json:"username,omitempty"`

	// Questions is the set the user answered; used only for local scoring.
	Questions []Question `json:"-"`
}

// ResultEntry is the per-question breakdown of a submission.
type ResultEntry struct {
	QuestionID        int64  `json:"question_id"`
	QuestionText      string `json:"question_text"`
	UserAnswerText    string `json:"user_answer_text"`
	CorrectAnswerText string `json:"correct_answer_text"`
	IsCorrect         bool   `json:"is_correct"`
}

// SubmissionResult is the scored outcome of a quiz attempt.
type SubmissionResult struct {
	Score          int           `json:"score"`
	TotalPoints    int           `json:"total_points"`
	TotalQuestions int           `json:"total_questions"`
	Percentage     int           `json:"percentage"`
	TimeTaken      int           `json:"time_taken"`
	Results        []ResultEntry `json:"results"`
	Fallback       bool          `json:"fallback,omitempty"`
}

// Attempt is one recorded quiz attempt as listed in the admin panel.
type Attempt struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username,omitempty"`
	UserID         *int64    `json:"user,omitempty"`
	UserSession    string    `json:"user_session"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     int       `json:"percentage"`
	TimeTaken      int       `json:"time_taken"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ScoreDistribution buckets attempts by percentage.
type ScoreDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Average   int `json:"average"`
	Poor      int `json:"poor"`
}

// QuizStats are aggregate statistics over all attempts.
type QuizStats struct {
	TotalAttempts     int               `json:"total_attempts"`
	AverageScore      float64           `json:"average_score"`
	AverageTimeTaken  float64           `json:"average_time_taken"`
	TotalQuestions    int               `json:"total_questions"`
	ScoreDistribution ScoreDistribution `json:"score_distribution"`
}

// Difficulty is a coarse question difficulty derived from accuracy.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionStat is the per-question accuracy over all attempts.
type QuestionStat struct {
	QuestionID      int64      `json:"question_id"`
	QuestionText    string     `json:"question_text"`
	Difficulty      Difficulty `json:"difficulty"`
	TotalAttempts   int        `json:"total_attempts"`
	CorrectAttempts int        `json:"correct_attempts"`
	Accuracy        float64    `json:"accuracy"`
}

// BackendStatus describes the last observed state of the backend.
type BackendStatus struct {
	Healthy   bool              `json:"healthy"`
	Degraded  bool              `json:"degraded"`
	LastError string            `json:"last_error,omitempty"`
	BaseURL   string            `json:"base_url"`
	Timeout   time.Duration     `json:"timeout"`
	Endpoints map[string]string `json:"endpoints"`
	CheckedAt time.Time         `json:"checked_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
