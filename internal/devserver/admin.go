package devserver

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"slices"

	"github.com/pavelanni/quizclient/internal/model"
)

func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var cfg model.QuizConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if cfg.TimerDuration < 1 || cfg.MaxAttempts < 0 {
		writeError(w, r, http.StatusBadRequest, "InvalidConfig")
		return
	}
	s.mu.Lock()
	s.quizCfg = cfg
	s.mu.Unlock()
	slog.Info("quiz config updated", "by", model.UserFromContext(r.Context()).Username,
		"timer_duration", cfg.TimerDuration, "is_active", cfg.IsActive)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	attempts := slices.Clone(s.attempts)
	s.mu.Unlock()
	// newest first
	slices.Reverse(attempts)
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats := Aggregate(s.attempts, len(s.cfg.Questions))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQuestionStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]model.QuestionStat, 0, len(s.cfg.Questions))
	for _, q := range s.cfg.Questions {
		out = append(out, QuestionStat(q, s.answered[q.ID], s.correct[q.ID]))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// Aggregate computes quiz statistics over attempts.
func Aggregate(attempts []model.Attempt, totalQuestions int) model.QuizStats {
	stats := model.QuizStats{
		TotalAttempts:  len(attempts),
		TotalQuestions: totalQuestions,
	}
	if len(attempts) == 0 {
		return stats
	}
	var score, elapsed int
	for _, a := range attempts {
		score += a.Score
		elapsed += a.TimeTaken
		switch {
		case a.Percentage >= 90:
			stats.ScoreDistribution.Excellent++
		case a.Percentage >= 70:
			stats.ScoreDistribution.Good++
		case a.Percentage >= 50:
			stats.ScoreDistribution.Average++
		default:
			stats.ScoreDistribution.Poor++
		}
	}
	n := float64(len(attempts))
	stats.AverageScore = round1(float64(score) / n)
	stats.AverageTimeTaken = round1(float64(elapsed) / n)
	return stats
}

// QuestionStat rates a question by how often it was answered correctly.
func QuestionStat(q model.Question, answered, correct int) model.QuestionStat {
	st := model.QuestionStat{
		QuestionID:      q.ID,
		QuestionText:    q.Text,
		TotalAttempts:   answered,
		CorrectAttempts: correct,
		Difficulty:      model.DifficultyMedium,
	}
	if answered == 0 {
		return st
	}
	st.Accuracy = round1(float64(correct) / float64(answered) * 100)
	switch {
	case st.Accuracy >= 70:
		st.Difficulty = model.DifficultyEasy
	case st.Accuracy < 40:
		st.Difficulty = model.DifficultyHard
	}
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
