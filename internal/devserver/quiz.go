package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/quiz"
)

// QuestionBank returns the questions served by default: the client's
// fallback set followed by five more.
func QuestionBank() []model.Question {
	return append(quiz.FallbackQuestions(),
		model.Question{ID: 6, Text: "Which CSS property is used to change the text color?", Choices: []model.Choice{
			{ID: 21, Text: "text-color"},
			{ID: 22, Text: "color", IsCorrect: true},
			{ID: 23, Text: "font-color"},
			{ID: 24, Text: "text-style"},
		}},
		model.Question{ID: 7, Text: "What does CSS stand for?", Choices: []model.Choice{
			{ID: 25, Text: "Cascading Style Sheets", IsCorrect: true},
			{ID: 26, Text: "Computer Style Sheets"},
			{ID: 27, Text: "Creative Style Sheets"},
			{ID: 28, Text: "Colorful Style Sheets"},
		}},
		model.Question{ID: 8, Text: "Which method is used to add an element to the end of an array in JavaScript?", Choices: []model.Choice{
			{ID: 29, Text: "push()", IsCorrect: true},
			{ID: 30, Text: "add()"},
			{ID: 31, Text: "append()"},
			{ID: 32, Text: "insert()"},
		}},
		model.Question{ID: 9, Text: "What is the purpose of the 'useState' hook in React?", Choices: []model.Choice{
			{ID: 33, Text: "To manage component state", IsCorrect: true},
			{ID: 34, Text: "To create side effects"},
			{ID: 35, Text: "To fetch data"},
			{ID: 36, Text: "To handle events"},
		}},
		model.Question{ID: 10, Text: "Which of the following is NOT a JavaScript data type?", Choices: []model.Choice{
			{ID: 37, Text: "string"},
			{ID: 38, Text: "boolean"},
			{ID: 39, Text: "float", IsCorrect: true},
			{ID: 40, Text: "number"},
		}},
	)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, quiz.PublicQuestions(s.cfg.Questions))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.quizCfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if sub.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "SessionRequired")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.quizCfg.IsActive {
		writeError(w, r, http.StatusForbidden, "QuizUnavailable")
		return
	}
	if s.quizCfg.MaxAttempts > 0 && s.attemptsFor(sub.SessionID) >= s.quizCfg.MaxAttempts {
		writeError(w, r, http.StatusForbidden, "MaxAttemptsReached")
		return
	}

	res := quiz.Evaluate(s.cfg.Questions, sub.Answers, sub.TimeTaken)
	for _, e := range res.Results {
		s.answered[e.QuestionID]++
		if e.IsCorrect {
			s.correct[e.QuestionID]++
		}
	}

	attempt := model.Attempt{
		ID:             int64(len(s.attempts) + 1),
		Username:       sub.Username,
		UserSession:    sub.SessionID,
		Score:          res.Score,
		TotalQuestions: res.TotalQuestions,
		Percentage:     res.Percentage,
		TimeTaken:      sub.TimeTaken,
		CompletedAt:    time.Now().UTC(),
	}
	if u := model.UserFromContext(r.Context()); u != nil {
		id := u.ID
		attempt.UserID = &id
		attempt.Username = u.Username
	}
	s.attempts = append(s.attempts, attempt)
	s.submits.Inc()
	slog.Info("scored submission", "session", sub.SessionID, "score", res.Score, "percentage", res.Percentage)

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) attemptsFor(sessionID string) int {
	n := 0
	for _, a := range s.attempts {
		if a.UserSession == sessionID {
			n++
		}
	}
	return n
}
