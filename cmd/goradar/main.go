package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/goradar/internal/app"
	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/scraper"
	"github.com/hyperifyio/goradar/internal/store"
)

// Exit codes.
const (
	exitOK         = 0
	exitInternal   = 1
	exitValidation = 2
	exitNotFound   = 3
)

// errUsage marks bad command-line input.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCmd(out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("goradar failed")
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage),
		errors.Is(err, app.ErrInvalidConfig),
		errors.Is(err, app.ErrUnknownFormat),
		errors.Is(err, job.ErrInvalidConfig),
		errors.Is(err, scraper.ErrInvalidConfig),
		errors.Is(err, scraper.ErrUnknownKind):
		return exitValidation
	case errors.Is(err, job.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return exitNotFound
	default:
		return exitInternal
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
	verbose    bool

	cacheDir      string
	databaseDSN   string
	redisAddr     string
	apiURL        string
	httpAddr      string
	maxConcurrent int
	noRobots      bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "goradar",
		Short:         "Collect academic data from university systems and deliver it to a backend",
		Version:       fmt.Sprintf("%s (%s, %s)", app.BuildVersion, app.BuildCommit, app.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML or JSON config file")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&opts.logFormat, "log-format", "", "console or json")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	pf.StringVar(&opts.cacheDir, "cache-dir", "", "HTTP cache directory")
	pf.StringVar(&opts.databaseDSN, "database-dsn", "", "Postgres URL/DSN or SQLite path for record persistence")
	pf.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for the shared job store")
	pf.StringVar(&opts.apiURL, "api-url", "", "Backend sink base URL")
	pf.StringVar(&opts.httpAddr, "http-addr", "", "Listen address for serve")
	pf.IntVar(&opts.maxConcurrent, "max-concurrent", 0, "Default batch concurrency bound (1-5)")
	pf.BoolVar(&opts.noRobots, "no-robots", false, "Do not consult robots.txt")

	root.AddCommand(
		newRunCmd(opts),
		newBatchCmd(opts),
		newPipelineCmd(opts),
		newServeCmd(opts),
		newJobsCmd(opts),
		newExportCmd(opts),
		newExtractorsCmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags,
// then configures logging.
func loadConfig(cmd *cobra.Command, opts *options) (app.Config, error) {
	if err := app.LoadEnvFiles(opts.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.Defaults()
	if opts.configPath != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("%w: %v", app.ErrInvalidConfig, err)
		}
		if err := app.ApplyFileConfig(&cfg, fc); err != nil {
			return app.Config{}, err
		}
	}
	app.ApplyEnvOverrides(&cfg)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("database-dsn") {
		cfg.DatabaseDSN = opts.databaseDSN
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr = opts.redisAddr
	}
	if flags.Changed("api-url") {
		cfg.APIURL = opts.apiURL
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if flags.Changed("max-concurrent") {
		cfg.MaxConcurrentJobs = opts.maxConcurrent
	}
	if flags.Changed("no-robots") {
		cfg.RespectRobots = !opts.noRobots
	}

	if err := setupLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return app.Config{}, err
	}
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func setupLogging(cfg app.Config, w io.Writer) error {
	zerolog.TimeFieldFormat = time.RFC3339
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "", "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	default:
		return fmt.Errorf("%w: unknown log format %q", app.ErrInvalidConfig, cfg.LogFormat)
	}
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.LogLevel); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return fmt.Errorf("%w: log level %q", app.ErrInvalidConfig, s)
		}
		level = l
	}
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// withApp loads the config, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *options, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
