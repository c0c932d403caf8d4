package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pavelanni/quizclient/internal/auth"
	"github.com/pavelanni/quizclient/internal/console"
	"github.com/pavelanni/quizclient/internal/controller"
	"github.com/pavelanni/quizclient/internal/devserver"
	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
	"github.com/pavelanni/quizclient/internal/store"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take the quiz in the terminal",
		RunE:  withApp(runTake),
	}
	cmd.Flags().String("metrics-addr", "", "Serve client metrics on this address while the quiz runs")
	return cmd
}

func runTake(cmd *cobra.Command, a *app, _ []string) error {
	ctx := cmd.Context()
	if err := a.session.Restore(ctx); err != nil {
		slog.Warn("could not restore login", "error", err)
	}

	if addr := a.v.GetString("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := shutdownTimeout()
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	ctrl := controller.New(a.quiz, a.session, a.ids, controller.WithTranslator(a.tr))
	var opts []console.Option
	if a.ttyFD >= 0 {
		opts = append(opts, console.WithPasswordReader(a.readPassword))
	}
	d := console.New(ctrl, a.quiz, a.session, cmd.InOrStdin(), a.out, a.tr, opts...)
	err := d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the tokens",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			username := a.prompt(a.tr.T("UsernamePrompt"), a.v.GetString("username"))
			password := a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("password"))
			u, err := a.session.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			a.say("LoggedInAs", map[string]any{"Name": u.DisplayName()})
			return nil
		}),
	}
	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().StringP("password", "p", "", "Password (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored tokens",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			a.say("LoggedOut", nil)
			return nil
		}),
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			reg := model.Registration{
				Username:  a.prompt(a.tr.T("UsernamePrompt"), a.v.GetString("username")),
				Email:     a.v.GetString("email"),
				FirstName: a.v.GetString("first-name"),
				LastName:  a.v.GetString("last-name"),
			}
			reg.Password = a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("password"))
			reg.ConfirmPassword = a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("confirm-password"))
			u, err := a.session.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			a.say("Registered", map[string]any{"Name": u.Username})
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringP("username", "u", "", "Username")
	f.String("email", "", "Email address")
	f.String("first-name", "", "First name")
	f.String("last-name", "", "Last name")
	f.StringP("password", "p", "", "Password (prompted when empty)")
	f.String("confirm-password", "", "Password confirmation (prompted when empty)")
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the logged-in profile",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			u, err := a.auth.GetProfile(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(u)
		}),
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			u, err := a.session.UpdateProfile(cmd.Context(), model.ProfileUpdate{
				Email:     a.v.GetString("email"),
				FirstName: a.v.GetString("first-name"),
				LastName:  a.v.GetString("last-name"),
			})
			if err != nil {
				return err
			}
			a.say("ProfileUpdated", nil)
			return a.print(u)
		}),
	}
	update.Flags().String("email", "", "Email address")
	update.Flags().String("first-name", "", "First name")
	update.Flags().String("last-name", "", "Last name")

	password := &cobra.Command{
		Use:   "password",
		Short: "Change the password",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			oldPw := a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("old"))
			newPw := a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("new"))
			confirm := a.promptPassword(a.tr.T("PasswordPrompt"), a.v.GetString("confirm"))
			if err := a.session.ChangePassword(cmd.Context(), oldPw, newPw, confirm); err != nil {
				return err
			}
			a.say("PasswordChanged", nil)
			return nil
		}),
	}
	password.Flags().String("old", "", "Current password")
	password.Flags().String("new", "", "New password")
	password.Flags().String("confirm", "", "New password again")

	cmd.AddCommand(update, password)
	return cmd
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the anonymous session identity",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			id, err := a.ids.ID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Replace the session identity",
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				id, err := a.ids.Regenerate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the session identity",
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				if err := a.ids.Clear(cmd.Context()); err != nil {
					return err
				}
				a.say("SessionCleared", nil)
				return nil
			}),
		},
	)
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Staff commands: configuration and statistics",
	}

	setConfig := &cobra.Command{
		Use:   "set-config",
		Short: "Update the quiz configuration",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if !a.session.IsStaff(ctx) {
				return errors.New(a.tr.T("StaffRequired"))
			}
			cfg, err := a.quiz.GetQuizConfig(ctx)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("timer-duration") {
				cfg.TimerDuration = a.v.GetInt("timer-duration")
			}
			if f.Changed("active") {
				cfg.IsActive = a.v.GetBool("active")
			}
			if f.Changed("max-attempts") {
				cfg.MaxAttempts = a.v.GetInt("max-attempts")
			}
			if f.Changed("show-results") {
				cfg.ShowResultsImmediately = a.v.GetBool("show-results")
			}
			updated, err := a.quiz.UpdateQuizConfig(ctx, cfg)
			if err != nil {
				return err
			}
			a.say("ConfigUpdated", nil)
			return a.print(updated)
		}),
	}
	sf := setConfig.Flags()
	sf.Int("timer-duration", model.DefaultTimerMinutes, "Time limit in minutes")
	sf.Bool("active", true, "Whether the quiz accepts attempts")
	sf.Int("max-attempts", 1, "Attempts allowed per session")
	sf.Bool("show-results", true, "Show results right after submission")

	cmd.AddCommand(
		dataCmd("config", "Show the quiz configuration", func(ctx context.Context, a *app) (any, error) {
			return a.quiz.GetQuizConfig(ctx)
		}),
		setConfig,
		dataCmd("attempts", "List quiz attempts", func(ctx context.Context, a *app) (any, error) {
			return a.quiz.GetQuizAttempts(ctx)
		}),
		dataCmd("stats", "Show aggregate statistics", func(ctx context.Context, a *app) (any, error) {
			return a.quiz.GetQuizStats(ctx)
		}),
		dataCmd("questions", "Show per-question accuracy", func(ctx context.Context, a *app) (any, error) {
			return a.quiz.GetQuestionStats(ctx)
		}),
	)
	return cmd
}

// dataCmd builds a command that fetches one value and prints it.
func dataCmd(use, short string, fetch func(context.Context, *app) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			v, err := fetch(cmd.Context(), a)
			if err != nil {
				return err
			}
			if a.quiz.Status().Degraded {
				slog.Warn(a.tr.T("DegradedMode"))
			}
			return a.print(v)
		}),
	}
}

type statusReport struct {
	Backend       model.BackendStatus `json:"backend"`
	Authenticated bool                `json:"authenticated"`
	User          *model.User         `json:"user,omitempty"`
	AccessExpires *time.Time          `json:"access_expires,omitempty"`
	SessionID     string              `json:"session_id"`
	StoredKeys    []string            `json:"stored_keys,omitempty"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health, login and session state",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			report := statusReport{Backend: a.quiz.CheckHealth(ctx)}

			if err := a.session.Restore(ctx); err != nil {
				slog.Warn("could not restore login", "error", err)
			}
			report.User = a.session.User()
			report.Authenticated = report.User != nil
			if access, err := a.tokens.Access(ctx); err == nil && access != "" {
				if exp, err := auth.AccessExpiry(access); err == nil {
					report.AccessExpires = &exp
				}
			}
			id, err := a.ids.ID(ctx)
			if err != nil {
				return err
			}
			report.SessionID = id
			if l, ok := a.kv.(store.Lister); ok {
				if report.StoredKeys, err = l.Keys(ctx); err != nil {
					return fmt.Errorf("list stored keys: %w", err)
				}
			}
			return a.print(report)
		}),
	}
}

func devserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory quiz backend for local testing",
		RunE:  runDevserver,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("prefix", "/api", "Path prefix of the API")
	f.String("admin-user", "admin", "Seeded staff username")
	f.String("admin-password", "", "Seeded staff password (or set QUIZCLIENT_ADMIN_PASSWORD)")
	f.String("secret", "", "JWT signing secret (random when empty)")
	f.Duration("access-ttl", 5*time.Minute, "Access token lifetime")
	f.Duration("refresh-ttl", 24*time.Hour, "Refresh token lifetime")
	f.Duration("latency", 0, "Artificial delay added to every API response")
	f.Int("timer-duration", model.DefaultTimerMinutes, "Initial time limit in minutes")
	f.Int("max-attempts", 1, "Initial attempts allowed per session")
	return cmd
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	tr, err := i18n.New(v.GetString("lang"))
	if err != nil {
		return err
	}
	password := v.GetString("admin-password")
	if password == "" {
		password = "adminpass"
		slog.Warn("using default admin password", "username", v.GetString("admin-user"))
	}

	s, err := devserver.New(devserver.Config{
		Prefix:        v.GetString("prefix"),
		Secret:        []byte(v.GetString("secret")),
		AccessTTL:     v.GetDuration("access-ttl"),
		RefreshTTL:    v.GetDuration("refresh-ttl"),
		AdminUser:     v.GetString("admin-user"),
		AdminPassword: password,
		Latency:       v.GetDuration("latency"),
		QuizConfig: model.QuizConfig{
			TimerDuration:          v.GetInt("timer-duration"),
			IsActive:               true,
			MaxAttempts:            v.GetInt("max-attempts"),
			ShowResultsImmediately: true,
		},
		Translator: tr,
	})
	if err != nil {
		return fmt.Errorf("create devserver: %w", err)
	}

	ctx := cmd.Context()
	srv := &http.Server{
		Addr:        v.GetString("addr"),
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting devserver", "addr", srv.Addr, "prefix", v.GetString("prefix"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down devserver")
		sctx, cancel := shutdownTimeout()
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
