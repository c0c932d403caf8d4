package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/quizclient/internal/controller"
	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/quiz"
)

// offlineQuiz behaves like a quiz client whose backend is down.
type offlineQuiz struct {
	mu   sync.Mutex
	subs []model.Submission
}

func (o *offlineQuiz) GetQuizConfig(context.Context) (model.QuizConfig, error) {
	return quiz.DefaultConfig(), nil
}

func (o *offlineQuiz) FetchQuizQuestions(context.Context) ([]model.Question, error) {
	return quiz.FallbackQuestions(), nil
}

func (o *offlineQuiz) SubmitQuizAnswers(_ context.Context, sub model.Submission) (model.SubmissionResult, error) {
	o.mu.Lock()
	o.subs = append(o.subs, sub)
	o.mu.Unlock()
	res := quiz.Evaluate(quiz.FallbackQuestions(), sub.Answers, sub.TimeTaken)
	res.Fallback = true
	return res, nil
}

func (o *offlineQuiz) GetQuizAttempts(context.Context) ([]model.Attempt, error) {
	return []model.Attempt{{Username: "alice", Percentage: 40, TimeTaken: 61}}, nil
}

func (o *offlineQuiz) GetQuizStats(context.Context) (model.QuizStats, error) {
	return model.QuizStats{TotalAttempts: 1, AverageScore: 20, ScoreDistribution: model.ScoreDistribution{Poor: 1}}, nil
}

func (o *offlineQuiz) GetQuestionStats(context.Context) ([]model.QuestionStat, error) {
	return nil, nil
}

func (o *offlineQuiz) Status() model.BackendStatus {
	return model.BackendStatus{Degraded: true}
}

type fakeAuth struct {
	staff    bool
	username string
}

func (f *fakeAuth) IsStaff(context.Context) bool { return f.staff }
func (f *fakeAuth) Username() string             { return f.username }

func (f *fakeAuth) Login(_ context.Context, username, password string) (*model.User, error) {
	if password != "adminpass" {
		return nil, errors.New("Invalid credentials")
	}
	f.staff = true
	f.username = username
	return &model.User{Username: username, IsStaff: true}, nil
}

type fixedID string

func (f fixedID) ID(context.Context) (string, error) { return string(f), nil }

func run(t *testing.T, input string, a *fakeAuth, opts ...Option) (string, *offlineQuiz) {
	t.Helper()
	q := &offlineQuiz{}
	tr := i18n.Default()
	ctrl := controller.New(q, a, fixedID("sess00001"), controller.WithTranslator(tr))
	var out bytes.Buffer
	d := New(ctrl, q, a, strings.NewReader(input), &out, tr, opts...)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), q
}

func TestTakeQuiz(t *testing.T) {
	out, q := run(t, "alice\n3\nn\n3\nn\n9\ns\nq\n", &fakeAuth{})

	for _, want := range []string{
		"5 questions available.",
		"Offline mode",
		"Question 1 of 5",
		"What is the capital of France?",
		"Invalid input.",
		"Score: 20/50 (40%)",
		"scored locally",
		"Your answer: Paris",
		"Correct answer: Hypertext Markup Language",
		"Bye.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if len(q.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(q.subs))
	}
	sub := q.subs[0]
	if sub.Username != "alice" || sub.SessionID != "sess00001" {
		t.Errorf("submission = %+v", sub)
	}
	if sub.Answers[1] != 3 || sub.Answers[2] != 7 {
		t.Errorf("answers = %v, want {1:3 2:7}", sub.Answers)
	}
}

func TestAdminLoginPrompt(t *testing.T) {
	a := &fakeAuth{}
	out, _ := run(t, "admin\nroot\nwrong\nroot\nadminpass\nb\nq\n", a)

	for _, want := range []string{
		"Staff login required",
		"Invalid credentials",
		"Admin panel",
		"Attempts: 1",
		"1 attempt:",
		"alice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if !a.staff {
		t.Error("login should have succeeded")
	}
}

func TestAdminLoginReadsPasswordSeparately(t *testing.T) {
	a := &fakeAuth{}
	var reads int
	readPassword := func() (string, error) {
		reads++
		return "adminpass", nil
	}
	out, _ := run(t, "admin\nroot\nb\nq\n", a, WithPasswordReader(readPassword))

	if reads != 1 {
		t.Errorf("password reads = %d, want 1", reads)
	}
	if !a.staff || a.username != "root" {
		t.Errorf("login as %q staff=%v, want root as staff", a.username, a.staff)
	}
	if strings.Contains(out, "adminpass") {
		t.Error("password written to output")
	}
	if !strings.Contains(out, "Admin panel") {
		t.Errorf("output missing admin panel\n%s", out)
	}
}
