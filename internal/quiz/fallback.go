package quiz

import (
	"math"

	"github.com/pavelanni/quizclient/internal/model"
)

// PointsPerQuestion is the score of one correct answer.
const PointsPerQuestion = 10

// Texts used in locally scored results.
const (
	NoAnswerText           = "No answer"
	AnswerNotAvailableText = "Answer not available"
)

// DefaultConfig is served when the configuration cannot be fetched.
func DefaultConfig() model.QuizConfig {
	return model.QuizConfig{
		TimerDuration:          model.DefaultTimerMinutes,
		IsActive:               true,
		MaxAttempts:            1,
		ShowResultsImmediately: true,
	}
}

// FallbackQuestions returns the sample questions served when the backend
// is unreachable. Each carries its correct choice.
func FallbackQuestions() []model.Question {
	return []model.Question{
		{ID: 1, Text: "What is the capital of France?", Choices: []model.Choice{
			{ID: 1, Text: "London"},
			{ID: 2, Text: "Berlin"},
			{ID: 3, Text: "Paris", IsCorrect: true},
			{ID: 4, Text: "Madrid"},
		}},
		{ID: 2, Text: "Which programming language is known for its use in web development and has a coffee-related name?", Choices: []model.Choice{
			{ID: 5, Text: "Python"},
			{ID: 6, Text: "JavaScript"},
			{ID: 7, Text: "Java", IsCorrect: true},
			{ID: 8, Text: "C++"},
		}},
		{ID: 3, Text: "What does HTML stand for?", Choices: []model.Choice{
			{ID: 9, Text: "Hypertext Markup Language", IsCorrect: true},
			{ID: 10, Text: "High Tech Modern Language"},
			{ID: 11, Text: "Home Tool Markup Language"},
			{ID: 12, Text: "Hyperlink and Text Markup Language"},
		}},
		{ID: 4, Text: "Which company developed React?", Choices: []model.Choice{
			{ID: 13, Text: "Google"},
			{ID: 14, Text: "Microsoft"},
			{ID: 15, Text: "Facebook (Meta)", IsCorrect: true},
			{ID: 16, Text: "Apple"},
		}},
		{ID: 5, Text: "What is the time complexity of binary search?", Choices: []model.Choice{
			{ID: 17, Text: "O(n)"},
			{ID: 18, Text: "O(log n)", IsCorrect: true},
			{ID: 19, Text: "O(n²)"},
			{ID: 20, Text: "O(1)"},
		}},
	}
}

// PublicQuestions strips the correctness markers, as the backend does.
func PublicQuestions(qs []model.Question) []model.Question {
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		out[i] = model.Question{ID: q.ID, Text: q.Text, Choices: make([]model.Choice, len(q.Choices))}
		for j, c := range q.Choices {
			out[i].Choices[j] = model.Choice{ID: c.ID, Text: c.Text}
		}
	}
	return out
}

// HasAnswerKey reports whether every question marks a correct choice.
func HasAnswerKey(qs []model.Question) bool {
	if len(qs) == 0 {
		return false
	}
	for _, q := range qs {
		if _, ok := q.CorrectChoice(); !ok {
			return false
		}
	}
	return true
}

// Evaluate scores answers against the correct choices of qs.
func Evaluate(qs []model.Question, answers model.AnswerMap, timeTaken int) model.SubmissionResult {
	res := model.SubmissionResult{
		TotalQuestions: len(qs),
		TotalPoints:    len(qs) * PointsPerQuestion,
		TimeTaken:      timeTaken,
		Results:        make([]model.ResultEntry, 0, len(qs)),
	}
	for _, q := range qs {
		entry := model.ResultEntry{
			QuestionID:        q.ID,
			QuestionText:      q.Text,
			UserAnswerText:    NoAnswerText,
			CorrectAnswerText: AnswerNotAvailableText,
		}
		correct, hasCorrect := q.CorrectChoice()
		if hasCorrect {
			entry.CorrectAnswerText = correct.Text
		}
		if chosenID, ok := answers[q.ID]; ok {
			if chosen, ok := q.Choice(chosenID); ok {
				entry.UserAnswerText = chosen.Text
				entry.IsCorrect = hasCorrect && chosen.ID == correct.ID
			}
		}
		if entry.IsCorrect {
			res.Score += PointsPerQuestion
		}
		res.Results = append(res.Results, entry)
	}
	res.Percentage = Percentage(res.Score, len(qs))
	return res
}

// Percentage is round(score / (n*10) * 100), 0 for an empty quiz.
func Percentage(score, questions int) int {
	if questions == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(questions*PointsPerQuestion) * 100))
}
