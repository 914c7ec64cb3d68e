package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/go-authgate/order-console/api"
	"github.com/go-authgate/order-console/session"
	"github.com/go-authgate/order-console/tui"
)

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
}

// flags holds the raw persistent flag values. Empty means "not given".
type flags struct {
	serverURL        string
	tokenFile        string
	store            string
	redisAddr        string
	redisPrefix      string
	refreshTimeout   string
	refreshThreshold string
	logLevel         string
	logFormat        string
	noPrompt         bool
}

// config is the resolved configuration.
type config struct {
	serverURL        string
	tokenFile        string
	store            string
	redisAddr        string
	redisPrefix      string
	refreshTimeout   time.Duration
	refreshThreshold time.Duration
	logLevel         string
	logFormat        string
	noPrompt         bool
}

// loadConfig resolves every setting with priority: flag > env > default
func loadConfig(f flags) (*config, error) {
	cfg := &config{
		serverURL:   getConfig(f.serverURL, "SERVER_URL", "http://localhost:8000/api"),
		tokenFile:   getConfig(f.tokenFile, "TOKEN_FILE", ".order-console-tokens.json"),
		store:       getConfig(f.store, "TOKEN_STORE", "file"),
		redisAddr:   getConfig(f.redisAddr, "REDIS_ADDR", "localhost:6379"),
		redisPrefix: getConfig(f.redisPrefix, "REDIS_PREFIX", "order-console"),
		logLevel:    getConfig(f.logLevel, "LOG_LEVEL", "warn"),
		logFormat:   getConfig(f.logFormat, "LOG_FORMAT", "console"),
		noPrompt:    f.noPrompt,
	}

	if err := validateServerURL(cfg.serverURL); err != nil {
		return nil, fmt.Errorf("invalid SERVER_URL: %w", err)
	}

	var err error
	cfg.refreshTimeout, err = time.ParseDuration(
		getConfig(f.refreshTimeout, "REFRESH_TIMEOUT", session.DefaultRefreshTimeout.String()),
	)
	if err != nil || cfg.refreshTimeout <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_TIMEOUT: must be a positive duration")
	}
	cfg.refreshThreshold, err = time.ParseDuration(
		getConfig(f.refreshThreshold, "REFRESH_THRESHOLD", session.DefaultThreshold.String()),
	)
	if err != nil || cfg.refreshThreshold < 0 {
		return nil, fmt.Errorf("invalid REFRESH_THRESHOLD: must be a non-negative duration")
	}

	if !cfg.noPrompt {
		if v, err := strconv.ParseBool(getEnv("NO_PROMPT", "false")); err == nil {
			cfg.noPrompt = v
		}
	}

	switch cfg.store {
	case "file", "redis", "memory":
	default:
		return nil, fmt.Errorf("invalid TOKEN_STORE %q: must be file, redis or memory", cfg.store)
	}
	switch cfg.logFormat {
	case "console", "json":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be console or json", cfg.logFormat)
	}
	return cfg, nil
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// buildLogger creates the zap logger writing to w.
func buildLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core), nil
}

// isTTY reports whether f is a character device (interactive terminal).
func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// app holds everything a command needs. It is built once per run, after
// flags are parsed.
type app struct {
	stdin       io.Reader
	stderr      io.Writer
	interactive bool
	d           tui.Displayer

	cfg      *config
	logger   *zap.Logger
	rdb      *redis.Client
	store    session.Store
	coord    *session.Coordinator
	pipeline *session.Transport
	guard    *session.Guard
	auth     *api.Auth
	client   *api.Client
}

func newApp(d tui.Displayer, stdin io.Reader, stderr io.Writer, interactive bool) *app {
	return &app{d: d, stdin: stdin, stderr: stderr, interactive: interactive}
}

// setup wires the store, the refresh coordinator, the request pipeline and
// the backend clients.
func (a *app) setup(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = buildLogger(cfg.logLevel, cfg.logFormat, a.stderr)
	if err != nil {
		return err
	}
	if strings.HasPrefix(strings.ToLower(cfg.serverURL), "http://") {
		a.logger.Warn("using HTTP instead of HTTPS, tokens are transmitted in plaintext",
			zap.String("server_url", cfg.serverURL))
	}

	switch cfg.store {
	case "redis":
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		a.store = session.NewRedisStore(a.rdb, cfg.redisPrefix)
	case "memory":
		a.store = session.NewMemoryStore(session.Pair{})
	default:
		a.store = session.NewFileStore(cfg.tokenFile, cfg.serverURL,
			session.WithFileLogger(a.logger.Named("store")))
	}
	a.guard = session.NewGuard(a.store)

	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	logger := a.logger.Named("api")

	// Renewal must bypass the pipeline.
	a.auth, err = api.NewAuth(cfg.serverURL,
		api.WithHTTPClient(&http.Client{Transport: base}),
		api.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	a.coord = session.NewCoordinator(a.store, a.auth,
		session.WithTimeout(cfg.refreshTimeout),
		session.WithThreshold(cfg.refreshThreshold),
		session.WithLogger(a.logger.Named("session")),
		session.WithObserver(a.d),
	)

	// Retries sit below the pipeline so a call is recovered at most once.
	retrying, err := api.NewRetryTransport(base, api.AttemptTimeout)
	if err != nil {
		return err
	}
	a.pipeline = session.NewTransport(a.store, a.coord,
		session.WithBase(retrying),
		session.WithRecovery(a.recovery()),
	)
	a.client, err = api.NewClient(cfg.serverURL,
		api.WithHTTPClient(&http.Client{Transport: a.pipeline}),
		api.WithLogger(logger),
	)
	return err
}

// recovery picks how a rejected session is restored: silently, through the
// dialog on a terminal, or through a one-line question otherwise.
func (a *app) recovery() session.SessionRecovery {
	switch {
	case a.cfg.noPrompt:
		return session.AutoRecovery(a.coord)
	case a.interactive:
		return tui.NewDialogRecovery(a.coord.Refresh, a.stdin, a.stderr)
	default:
		return tui.NewLinePrompt(a.coord.Refresh, a.stdin, a.stderr)
	}
}

func (a *app) close() {
	if a.pipeline != nil {
		// An abandoned session prompt still has to finish with the store.
		a.pipeline.Wait()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Debug("failed to close redis client", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// report prints err the way the user should see it.
func (a *app) report(err error) {
	switch {
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, errNotLoggedIn):
		a.d.SessionExpired()
	default:
		a.d.Fatal(err)
	}
}

// run executes the command line args and returns the process exit code.
func run(ctx context.Context, d tui.Displayer, args []string, stdin io.Reader, stdout, stderr io.Writer, interactive bool) int {
	a := newApp(d, stdin, stderr, interactive)
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		a.report(err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := isTTY(os.Stderr) && isTTY(os.Stdin)

	var d tui.Displayer
	if isTTY(os.Stderr) {
		d = tui.NewStyledDisplayer(os.Stdout, os.Stderr)
	} else {
		d = tui.NewPlainDisplayer(os.Stdout, os.Stderr)
	}

	code := run(ctx, d, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, interactive)
	stop()
	os.Exit(code)
}

func (a *app) rootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "order-console",
		Short:         "Manage course orders from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(f); err != nil {
				return err
			}
			if cmd.Annotations[annotationAuth] == "required" && !a.guard.CanEnter(cmd.Context()) {
				return errNotLoggedIn
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.serverURL, "server-url", "", "Backend API URL (default: http://localhost:8000/api or SERVER_URL env)")
	pf.StringVar(&f.tokenFile, "token-file", "", "Credential file (default: .order-console-tokens.json or TOKEN_FILE env)")
	pf.StringVar(&f.store, "store", "", "Credential store: file, redis or memory (default: file or TOKEN_STORE env)")
	pf.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the redis store (default: localhost:6379 or REDIS_ADDR env)")
	pf.StringVar(&f.redisPrefix, "redis-prefix", "", "Key prefix for the redis store (default: order-console or REDIS_PREFIX env)")
	pf.StringVar(&f.refreshTimeout, "refresh-timeout", "", "Upper bound for one token renewal (default: 10s or REFRESH_TIMEOUT env)")
	pf.StringVar(&f.refreshThreshold, "refresh-threshold", "", "Renew tokens this long before they expire (default: 60s or REFRESH_THRESHOLD env)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: warn or LOG_LEVEL env)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: console or json (default: console or LOG_FORMAT env)")
	pf.BoolVar(&f.noPrompt, "no-prompt", false, "Extend expired sessions without asking (or NO_PROMPT env)")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.statusCmd(),
		a.meCmd(),
		a.ordersCmd(),
		a.usersCmd(),
		a.accountCmd(),
	)
	return root
}
