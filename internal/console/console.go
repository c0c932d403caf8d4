// Package console runs a quiz session in a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/quizclient/internal/controller"
	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/timer"
)

// AdminData is what the admin panel shows.
type AdminData interface {
	GetQuizAttempts(ctx context.Context) ([]model.Attempt, error)
	GetQuizStats(ctx context.Context) (model.QuizStats, error)
	GetQuestionStats(ctx context.Context) ([]model.QuestionStat, error)
	Status() model.BackendStatus
}

// Authenticator logs in from the admin login prompt.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*model.User, error)
}

// Driver reads commands from in and renders the session to out.
type Driver struct {
	ctrl  *controller.Controller
	admin AdminData
	login Authenticator
	in    io.Reader
	out   io.Writer
	tr    *i18n.Translator

	changes chan struct{}
	// username typed at the login prompt, waiting for the password
	pendingUser  string
	readPassword func() (string, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithPasswordReader reads passwords at the login prompt with fn instead of
// the input stream, typically without echo.
func WithPasswordReader(fn func() (string, error)) Option {
	return func(d *Driver) { d.readPassword = fn }
}

func New(ctrl *controller.Controller, admin AdminData, login Authenticator, in io.Reader, out io.Writer, tr *i18n.Translator, opts ...Option) *Driver {
	d := &Driver{
		ctrl:    ctrl,
		admin:   admin,
		login:   login,
		in:      in,
		out:     out,
		tr:      tr,
		changes: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	ctrl.OnChange(func(controller.State) {
		select {
		case d.changes <- struct{}{}:
		default:
		}
	})
	return d
}

// Run drives the session until the input ends, the user quits, or ctx is
// cancelled.
func (d *Driver) Run(ctx context.Context) error {
	// One line is read per request; true asks for a password.
	reqs := make(chan bool, 1)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(d.in)
		for secret := range reqs {
			var line string
			if secret && d.readPassword != nil {
				pw, err := d.readPassword()
				if err != nil {
					slog.Warn("failed to read password", "error", err)
					return
				}
				line = pw
			} else {
				if !sc.Scan() {
					return
				}
				line = sc.Text()
			}
			select {
			case lines <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()
	defer close(reqs)

	fmt.Fprintln(d.out, d.tr.T("AppTitle"))
	if err := d.ctrl.Dispatch(ctx, controller.Init{}); err != nil {
		return err
	}
	last := d.render(ctx, controller.State{})
	reqs <- d.wantsPassword()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.changes:
			st := d.ctrl.State()
			if changed(last, st) {
				last = d.render(ctx, st)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := d.handle(ctx, line)
			if err != nil {
				fmt.Fprintln(d.out, err)
			}
			if quit {
				fmt.Fprintln(d.out, d.tr.T("Goodbye"))
				return nil
			}
			// Drain the change signal of this input and render once.
			select {
			case <-d.changes:
			default:
			}
			last = d.render(ctx, d.ctrl.State())
			reqs <- d.wantsPassword()
		}
	}
}

// wantsPassword reports whether the next line is a password.
func (d *Driver) wantsPassword() bool {
	return d.pendingUser != "" && d.ctrl.State().Phase == controller.PhaseLogin
}

// changed reports whether st differs from last in a way worth redrawing.
// Countdown ticks alone are not.
func changed(last, st controller.State) bool {
	return last.Phase != st.Phase || last.Error != st.Error || last.Current != st.Current ||
		len(last.Answers) != len(st.Answers)
}

func (d *Driver) handle(ctx context.Context, line string) (quit bool, err error) {
	st := d.ctrl.State()
	cmd := strings.ToLower(line)
	if cmd == "q" || cmd == "quit" {
		return true, nil
	}

	if st.Error != "" {
		switch cmd {
		case "r", "retry":
			return false, d.ctrl.Dispatch(ctx, controller.Retry{})
		case "x", "restart":
			return false, d.ctrl.Dispatch(ctx, controller.Restart{})
		}
		if st.Phase != controller.PhaseActive && st.Phase != controller.PhaseLogin {
			return false, nil
		}
	}

	switch st.Phase {
	case controller.PhaseStart:
		if cmd == "admin" {
			return false, d.ctrl.Dispatch(ctx, controller.ShowAdmin{})
		}
		if line != "" {
			if err := d.ctrl.Dispatch(ctx, controller.SetUsername{Name: line}); err != nil {
				return false, err
			}
		}
		return false, d.ctrl.Dispatch(ctx, controller.Start{})

	case controller.PhaseActive:
		switch cmd {
		case "n", "next", "":
			return false, d.ctrl.Dispatch(ctx, controller.Next{})
		case "p", "prev", "previous":
			return false, d.ctrl.Dispatch(ctx, controller.Previous{})
		case "s", "submit":
			return false, d.ctrl.Dispatch(ctx, controller.Submit{})
		}
		n, convErr := strconv.Atoi(cmd)
		q, ok := st.CurrentQuestion()
		if convErr != nil || !ok || n < 1 || n > len(q.Choices) {
			return false, fmt.Errorf("%s", d.tr.T("InvalidInput"))
		}
		return false, d.ctrl.Dispatch(ctx, controller.Select{QuestionID: q.ID, ChoiceID: q.Choices[n-1].ID})

	case controller.PhaseResults:
		switch cmd {
		case "r", "restart":
			return false, d.ctrl.Dispatch(ctx, controller.Restart{})
		case "admin":
			return false, d.ctrl.Dispatch(ctx, controller.ShowAdmin{})
		}

	case controller.PhaseAdmin:
		if cmd == "b" || cmd == "back" {
			return false, d.ctrl.Dispatch(ctx, controller.BackToQuiz{})
		}

	case controller.PhaseLogin:
		if cmd == "b" || cmd == "back" {
			d.pendingUser = ""
			return false, d.ctrl.Dispatch(ctx, controller.BackToQuiz{})
		}
		if d.pendingUser == "" {
			d.pendingUser = line
			return false, nil
		}
		user := d.pendingUser
		d.pendingUser = ""
		if _, err := d.login.Login(ctx, user, line); err != nil {
			slog.Warn("admin login failed", "username", user, "error", err)
			return false, err
		}
		return false, d.ctrl.Dispatch(ctx, controller.AdminLoggedIn{})
	}
	return false, nil
}

func (d *Driver) render(ctx context.Context, st controller.State) controller.State {
	if st.Phase == "" {
		st = d.ctrl.State()
	}
	w := d.out
	if st.Error != "" {
		fmt.Fprintf(w, "\n! %s\n%s\n", st.Error, d.tr.T("ErrorMenu"))
		if st.Phase != controller.PhaseActive && st.Phase != controller.PhaseLogin {
			return st
		}
	}

	switch st.Phase {
	case controller.PhaseStart:
		fmt.Fprintln(w)
		fmt.Fprintln(w, d.tr.Tp("QuestionsAvailable", st.QuestionsCount))
		fmt.Fprintln(w, d.tr.Td("TimeLimit", map[string]any{"Minutes": st.Config.DurationSeconds() / 60}))
		if d.admin.Status().Degraded {
			fmt.Fprintln(w, d.tr.T("DegradedMode"))
		}
		fmt.Fprintln(w, d.tr.T("StartPrompt"))

	case controller.PhaseLoading:
		fmt.Fprintln(w, d.tr.T("Loading"))

	case controller.PhaseActive:
		q, ok := st.CurrentQuestion()
		if !ok {
			return st
		}
		fmt.Fprintf(w, "\n%s  [%s]\n", d.tr.Td("QuestionN", map[string]any{
			"N": st.Current + 1, "Total": len(st.Questions),
		}), d.tr.Td("TimeLeft", map[string]any{"Time": timer.Format(st.Remaining)}))
		fmt.Fprintln(w, q.Text)
		for i, c := range q.Choices {
			mark := " "
			if st.Answers[q.ID] == c.ID {
				mark = "*"
			}
			fmt.Fprintf(w, " %s %d) %s\n", mark, i+1, c.Text)
		}
		fmt.Fprintln(w, d.tr.T("ActiveHelp"))

	case controller.PhaseResults:
		d.renderResults(st)

	case controller.PhaseAdmin:
		d.renderAdmin(ctx)

	case controller.PhaseLogin:
		if d.pendingUser == "" {
			fmt.Fprintln(w, d.tr.T("AdminLoginRequired"))
			fmt.Fprint(w, d.tr.T("UsernamePrompt"))
		} else {
			fmt.Fprint(w, d.tr.T("PasswordPrompt"))
		}
	}
	return st
}

func (d *Driver) renderResults(st controller.State) {
	res := st.Result
	if res == nil {
		return
	}
	w := d.out
	fmt.Fprintf(w, "\n%s\n", d.tr.T("ResultsTitle"))
	fmt.Fprintln(w, d.tr.Td("ScoreLine", map[string]any{
		"Score": res.Score, "Total": res.TotalPoints, "Percentage": res.Percentage,
	}))
	fmt.Fprintln(w, d.tr.Td("TimeTakenLine", map[string]any{"Time": timer.Format(res.TimeTaken)}))
	if res.Fallback {
		fmt.Fprintln(w, d.tr.T("ScoredLocally"))
	}
	for i, r := range res.Results {
		verdict := d.tr.T("Incorrect")
		if r.IsCorrect {
			verdict = d.tr.T("Correct")
		}
		fmt.Fprintf(w, "%d. %s [%s]\n", i+1, r.QuestionText, verdict)
		fmt.Fprintf(w, "   %s: %s\n", d.tr.T("YourAnswer"), r.UserAnswerText)
		if !r.IsCorrect {
			fmt.Fprintf(w, "   %s: %s\n", d.tr.T("CorrectAnswer"), r.CorrectAnswerText)
		}
	}
	fmt.Fprintln(w, d.tr.T("ResultsMenu"))
}

func (d *Driver) renderAdmin(ctx context.Context) {
	w := d.out
	fmt.Fprintf(w, "\n%s\n", d.tr.T("AdminTitle"))

	stats, err := d.admin.GetQuizStats(ctx)
	if err != nil {
		fmt.Fprintln(w, err)
	} else {
		fmt.Fprintln(w, d.tr.Td("StatsLine", map[string]any{
			"Attempts": stats.TotalAttempts,
			"Score":    fmt.Sprintf("%.1f", stats.AverageScore),
			"Time":     timer.Format(int(stats.AverageTimeTaken)),
		}))
		sd := stats.ScoreDistribution
		fmt.Fprintln(w, d.tr.Td("DistributionLine", map[string]any{
			"Excellent": sd.Excellent, "Good": sd.Good, "Average": sd.Average, "Poor": sd.Poor,
		}))
	}

	if qstats, err := d.admin.GetQuestionStats(ctx); err == nil {
		for _, qs := range qstats {
			fmt.Fprintf(w, "  #%d %5.1f%% %-6s %s\n", qs.QuestionID, qs.Accuracy, qs.Difficulty, qs.QuestionText)
		}
	}

	if attempts, err := d.admin.GetQuizAttempts(ctx); err == nil {
		fmt.Fprintln(w, d.tr.Tp("RecentAttempts", len(attempts)))
		for i, a := range attempts {
			if i == 10 {
				break
			}
			who := a.Username
			if who == "" {
				who = a.UserSession
			}
			fmt.Fprintf(w, "  %s  %-16s %3d%%  %s\n", a.CompletedAt.Format("2006-01-02 15:04"), who, a.Percentage, timer.Format(a.TimeTaken))
		}
	}
	if d.admin.Status().Degraded {
		fmt.Fprintln(w, d.tr.T("DegradedMode"))
	}
	fmt.Fprintln(w, d.tr.T("AdminMenu"))
}
