package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/document"
	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/record"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Politeness
	RateLimit         time.Duration
	CourseRateLimit   time.Duration
	ScheduleRateLimit time.Duration
	SyllabusRateLimit time.Duration
	RespectRobots     bool
	UserAgent         string
	BrowserTimeout    time.Duration

	// Retry of transient fetch failures
	Retries      int
	RetryInitial time.Duration
	RetryMax     time.Duration

	// Jobs and documents
	MaxConcurrentJobs int
	MaxConcurrentPDFs int
	MaxPDFSizeMB      int
	MinConfidence     float64
	FallbackBelow     float64
	Confidence        document.Weights

	// Target locators
	CourseCatalogURL      string
	ScheduleSystemURL     string
	SyllabusIndexURL      string
	ProfessorDirectoryURL string
	ComponentsURL         string
	StructuresURL         string

	// Sink
	APIURL        string
	APITimeout    time.Duration
	APIBatchSize  int
	APIBatchDelay time.Duration

	// Storage
	CacheDir       string
	CacheMaxAge    time.Duration
	CacheClear     bool
	DatabaseDSN    string
	DatabaseDriver string
	RedisAddr      string
	RedisPrefix    string

	// Behavior
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	Verbose   bool
}

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults returns the stock configuration.
func Defaults() Config {
	return Config{
		RateLimit:         time.Second,
		CourseRateLimit:   time.Second,
		ScheduleRateLimit: 1500 * time.Millisecond,
		SyllabusRateLimit: 2 * time.Second,
		RespectRobots:     true,
		UserAgent:         "goradar/1.0 (+https://github.com/hyperifyio/goradar)",
		BrowserTimeout:    30 * time.Second,

		Retries:      3,
		RetryInitial: 4 * time.Second,
		RetryMax:     10 * time.Second,

		MaxConcurrentJobs: job.DefaultMaxConcurrent,
		MaxConcurrentPDFs: 3,
		MaxPDFSizeMB:      50,
		MinConfidence:     0.3,
		FallbackBelow:     document.DefaultFallbackBelow,
		Confidence:        document.DefaultWeights(),

		APIURL:        delivery.DefaultBaseURL,
		APITimeout:    delivery.DefaultTimeout,
		APIBatchSize:  delivery.DefaultBatchSize,
		APIBatchDelay: delivery.DefaultBatchDelay,

		CacheDir:    ".goradar-cache",
		RedisPrefix: "goradar",

		HTTPAddr:  ":8090",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// URLs maps each kind to its configured target locator. Kinds without one
// are omitted.
func (c Config) URLs() map[record.Kind]string {
	out := make(map[record.Kind]string)
	set := func(k record.Kind, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	set(record.KindCourses, c.CourseCatalogURL)
	set(record.KindSchedules, c.ScheduleSystemURL)
	set(record.KindSyllabi, c.SyllabusIndexURL)
	set(record.KindProfessors, c.ProfessorDirectoryURL)
	set(record.KindComponents, c.ComponentsURL)
	set(record.KindStructures, c.StructuresURL)
	return out
}

// Intervals maps each kind to its minimum request spacing. Kinds without a
// dedicated limit use RateLimit.
func (c Config) Intervals() map[record.Kind]time.Duration {
	out := make(map[record.Kind]time.Duration, len(record.Kinds))
	for _, k := range record.Kinds {
		out[k] = c.RateLimit
	}
	if c.CourseRateLimit > 0 {
		out[record.KindCourses] = c.CourseRateLimit
	}
	if c.ScheduleRateLimit > 0 {
		out[record.KindSchedules] = c.ScheduleRateLimit
	}
	if c.SyllabusRateLimit > 0 {
		out[record.KindSyllabi] = c.SyllabusRateLimit
	}
	return out
}

// ValidateConfig rejects negative limits, out-of-range concurrency and
// thresholds, and malformed confidence weights.
func ValidateConfig(cfg Config) error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"rate limit":          cfg.RateLimit,
		"course rate limit":   cfg.CourseRateLimit,
		"schedule rate limit": cfg.ScheduleRateLimit,
		"syllabus rate limit": cfg.SyllabusRateLimit,
		"browser timeout":     cfg.BrowserTimeout,
		"api timeout":         cfg.APITimeout,
		"cache max age":       cfg.CacheMaxAge,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("config: %s must not be negative", name))
		}
	}
	if cfg.MaxConcurrentJobs < 1 || cfg.MaxConcurrentJobs > job.MaxConcurrentLimit {
		errs = append(errs, fmt.Errorf("config: max concurrent jobs must be between 1 and %d", job.MaxConcurrentLimit))
	}
	if cfg.MaxConcurrentPDFs < 1 {
		errs = append(errs, errors.New("config: max concurrent pdfs must be at least 1"))
	}
	if cfg.MaxPDFSizeMB < 1 {
		errs = append(errs, errors.New("config: max pdf size must be at least 1 MB"))
	}
	if cfg.Retries < 1 {
		errs = append(errs, errors.New("config: retries must be at least 1"))
	}
	if cfg.APIBatchSize < 1 {
		errs = append(errs, errors.New("config: api batch size must be at least 1"))
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		errs = append(errs, errors.New("config: min confidence must be within [0,1]"))
	}
	if cfg.FallbackBelow < 0 || cfg.FallbackBelow > 1 {
		errs = append(errs, errors.New("config: fallback threshold must be within [0,1]"))
	}
	if err := cfg.Confidence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: confidence: %w", err))
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log format %q", cfg.LogFormat))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
