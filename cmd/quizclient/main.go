package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/quizclient/internal/auth"
	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/quiz"
	"github.com/pavelanni/quizclient/internal/session"
	"github.com/pavelanni/quizclient/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quizclient",
		Short:        "Timed multiple-choice quiz client",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("api-url", "http://localhost:8000/api", "Quiz backend base URL")
	pf.String("state-backend", "sqlite", "Client state storage (sqlite, redis, memory)")
	pf.String("state-db", "quizclient.db", "SQLite state database path")
	pf.String("redis-addr", "localhost:6379", "Redis address for the redis state backend")
	pf.String("redis-prefix", "quizclient:", "Key prefix for the redis state backend")
	pf.StringP("lang", "l", "en", "Message language (en, ru)")
	pf.Duration("timeout", quiz.DefaultTimeout, "Request timeout")
	pf.Duration("stats-timeout", quiz.DefaultStatsTimeout, "Request timeout for statistics")
	pf.Duration("retry-delay", quiz.DefaultRetryDelay, "Delay between timeout retries")
	pf.Bool("fallback", true, "Serve sample data when the backend is unavailable")
	pf.StringP("output", "o", "yaml", "Output format for data commands (yaml, json)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	take := takeCmd()
	root.AddCommand(
		take,
		loginCmd(),
		logoutCmd(),
		registerCmd(),
		profileCmd(),
		sessionCmd(),
		adminCmd(),
		statusCmd(),
		devserverCmd(),
	)

	// "take" is the default when no subcommand is given.
	root.RunE = take.RunE
	root.Flags().AddFlagSet(take.Flags())

	return root
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizclient")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizclient")
	v.AddConfigPath("/etc/quizclient")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// clientMetrics registers the quiz client counters once per process.
var clientMetrics = sync.OnceValue(func() *quiz.Metrics {
	return quiz.NewMetrics(prometheus.DefaultRegisterer)
})

// app is the client wiring shared by every command.
type app struct {
	v       *viper.Viper
	kv      store.KV
	close   func() error
	tr      *i18n.Translator
	tokens  *auth.TokenStore
	auth    *auth.Client
	session *auth.Session
	quiz    *quiz.Client
	ids     *session.Identity
	in      *bufio.Reader
	out     io.Writer
	// ttyFD is the descriptor of an interactive stdin, or -1.
	ttyFD   int
}

func newApp(cmd *cobra.Command) (*app, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	tr, err := i18n.New(v.GetString("lang"))
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	kv, closeKV, err := openStore(cmd.Context(), v)
	if err != nil {
		return nil, err
	}

	apiURL := v.GetString("api-url")
	tokens := auth.NewTokenStore(kv)
	timeout := v.GetDuration("timeout")
	hc := &http.Client{Transport: auth.NewTransport(apiURL, tokens, nil)}

	authClient := auth.NewClient(apiURL, tokens,
		auth.WithHTTPClient(&http.Client{Transport: hc.Transport, Timeout: timeout}),
		auth.WithTranslator(tr))
	quizClient := quiz.NewClient(apiURL,
		quiz.WithHTTPClient(hc),
		quiz.WithTimeout(timeout),
		quiz.WithStatsTimeout(v.GetDuration("stats-timeout")),
		quiz.WithRetryDelay(v.GetDuration("retry-delay")),
		quiz.WithFallback(v.GetBool("fallback")),
		quiz.WithMetrics(clientMetrics()),
	)

	ttyFD := -1
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		ttyFD = int(f.Fd())
	}

	slog.Debug("client configured", "api_url", apiURL, "state", v.GetString("state-backend"), "lang", tr.Lang())
	return &app{
		v:       v,
		kv:      kv,
		close:   closeKV,
		tr:      tr,
		tokens:  tokens,
		auth:    authClient,
		session: auth.NewSession(authClient),
		quiz:    quizClient,
		ids:     session.New(kv),
		in:      bufio.NewReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
		ttyFD:   ttyFD,
	}, nil
}

func openStore(ctx context.Context, v *viper.Viper) (store.KV, func() error, error) {
	switch backend := strings.ToLower(v.GetString("state-backend")); backend {
	case "memory":
		m := store.NewMemory()
		return m, m.Close, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: v.GetString("redis-addr")})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", v.GetString("redis-addr"), err)
		}
		r := store.NewRedis(rdb, v.GetString("redis-prefix"))
		return r, r.Close, nil
	case "sqlite", "":
		s, err := store.New(v.GetString("state-db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open state database: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.close(); err != nil {
				slog.Warn("failed to close state store", "error", err)
			}
		}()
		return fn(cmd, a, args)
	}
}

// print writes v in the configured output format.
func (a *app) print(v any) error {
	switch strings.ToLower(a.v.GetString("output")) {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		// Go through JSON so field names match the API.
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}
}

func (a *app) say(msgID string, data map[string]any) {
	fmt.Fprintln(a.out, a.tr.Td(msgID, data))
}

// prompt reads one line of input when value is empty.
func (a *app) prompt(label, value string) string {
	if value != "" {
		return value
	}
	fmt.Fprint(a.out, label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptPassword is prompt without echo when stdin is a terminal.
func (a *app) promptPassword(label, value string) string {
	if value != "" || a.ttyFD < 0 {
		return a.prompt(label, value)
	}
	fmt.Fprint(a.out, label)
	pw, err := a.readPassword()
	if err != nil {
		slog.Warn("failed to read password", "error", err)
	}
	return strings.TrimSpace(pw)
}

// readPassword reads one line from the terminal without echo.
func (a *app) readPassword() (string, error) {
	pw, err := term.ReadPassword(a.ttyFD)
	fmt.Fprintln(a.out)
	return string(pw), err
}

func shutdownTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
