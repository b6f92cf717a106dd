// Package app wires configuration into the fetcher, extractor units, job
// runner, delivery sink, repository and HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/api"
	"github.com/hyperifyio/goradar/internal/cache"
	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/document"
	"github.com/hyperifyio/goradar/internal/export"
	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/robots"
	"github.com/hyperifyio/goradar/internal/scraper"
	"github.com/hyperifyio/goradar/internal/store"
	"github.com/hyperifyio/goradar/internal/validate"
)

// ErrUnknownFormat is returned by Export for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

type App struct {
	cfg       Config
	httpCache *cache.HTTPCache
	fetcher   *fetch.Client
	sink      *delivery.Client
	runner    *job.Runner
	repo      *store.Repository
	redis     *job.RedisStore
}

// New builds the application from cfg. Redis and the database are only
// opened when configured; a failure to reach either is fatal.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}

	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			_ = cache.ClearDir(cfg.CacheDir)
		}
		if cfg.CacheMaxAge > 0 {
			// Purge by age; ignore errors to avoid failing startup
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err == nil && n > 0 {
				log.Info().Int("removed", n).Msg("purged stale cache entries")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, MaxAge: cfg.CacheMaxAge}
	}

	a.fetcher = &fetch.Client{
		HTTPClient:        newPoliteHTTPClient(cfg.BrowserTimeout),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.Retries,
		RetryInitial:      cfg.RetryInitial,
		RetryMax:          cfg.RetryMax,
		PerRequestTimeout: cfg.BrowserTimeout,
		Cache:             a.httpCache,
	}
	factory := page.HTTPFactory{Client: a.fetcher, WaitTimeout: cfg.BrowserTimeout}
	if cfg.RespectRobots {
		factory.Robots = &robots.Manager{Client: a.fetcher, UserAgent: cfg.UserAgent}
	}

	analyzer := document.NewAnalyzer(cfg.Confidence)
	analyzer.FallbackBelow = cfg.FallbackBelow
	env := scraper.Env{
		Pages: factory,
		Documents: &document.Pipeline{
			Analyzer:      analyzer,
			MaxBytes:      int64(cfg.MaxPDFSizeMB) << 20,
			MinConfidence: cfg.MinConfidence,
			MaxConcurrent: cfg.MaxConcurrentPDFs,
		},
		URLs:      cfg.URLs(),
		Intervals: cfg.Intervals(),
	}

	var jobs job.Store
	if cfg.RedisAddr != "" {
		rs, err := job.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rs
		jobs = rs
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis job store")
	}

	a.runner = job.NewRunner(jobs, env)
	a.runner.MaxConcurrent = cfg.MaxConcurrentJobs
	a.runner.Validator = &validate.Validator{Version: BuildVersion}

	a.sink = &delivery.Client{
		BaseURL:    cfg.APIURL,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
		BatchSize:  cfg.APIBatchSize,
		BatchDelay: cfg.APIBatchDelay,
		Retry:      fetch.RetryPolicy{Attempts: cfg.Retries, Initial: cfg.RetryInitial, Max: cfg.RetryMax},
	}
	a.runner.Sink = delivery.NewOrchestrator(a.sink)

	if cfg.DatabaseDSN != "" {
		repo, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.repo = repo
		a.runner.Repository = repo
	}
	return a, nil
}

// Close waits for background jobs and releases connections.
func (a *App) Close() {
	if a.runner != nil {
		a.runner.Wait()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			log.Warn().Err(err).Msg("close repository")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
}

// Runner returns the job runner.
func (a *App) Runner() *job.Runner { return a.runner }

// Repository returns the record repository, or nil when no database is
// configured.
func (a *App) Repository() *store.Repository { return a.repo }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return api.NewHandler(a.runner).Router() }

// Serve runs the HTTP API on cfg.HTTPAddr until ctx is done, then shuts the
// server down and waits for running jobs.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.HTTPAddr).Msg("http api listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("http api stopped")
	return nil
}

// Records returns stored records of kind, or of every kind when kind is
// empty. The repository is used when configured; otherwise the results of
// completed jobs in the job store are collected.
func (a *App) Records(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	if a.repo != nil {
		return a.repo.List(ctx, kind)
	}
	jobs, err := a.runner.List(ctx, job.Filter{Status: job.StatusCompleted, Kind: kind})
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for i := len(jobs) - 1; i >= 0; i-- {
		recs, err := a.runner.Results(ctx, jobs[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Export writes stored records as xlsx or json, or a job summary as pdf.
func (a *App) Export(ctx context.Context, format string, kind record.Kind, w io.Writer) error {
	switch format {
	case export.FormatPDF:
		jobs, err := a.runner.List(ctx, job.Filter{Kind: kind})
		if err != nil {
			return err
		}
		return export.SummaryPDF(w, jobs, time.Now())
	case export.FormatXLSX, export.FormatJSON:
		recs, err := a.Records(ctx, kind)
		if err != nil {
			return err
		}
		log.Info().Str("format", format).Int("records", len(recs)).Msg("exporting records")
		if format == export.FormatXLSX {
			return export.XLSX(w, recs)
		}
		return export.JSON(w, recs)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}
