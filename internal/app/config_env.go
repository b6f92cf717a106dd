package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file so env takes precedence over it, while
// flags applied afterwards stay highest. Unparseable values are logged and
// ignored.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.APIURL, "RADAR_API_URL")
	setString(&cfg.CourseCatalogURL, "COURSE_CATALOG_URL")
	setString(&cfg.ScheduleSystemURL, "SCHEDULE_SYSTEM_URL")
	setString(&cfg.SyllabusIndexURL, "SYLLABUS_INDEX_URL")
	setString(&cfg.ProfessorDirectoryURL, "PROFESSOR_DIRECTORY_URL")
	setString(&cfg.ComponentsURL, "COMPONENTS_URL")
	setString(&cfg.StructuresURL, "STRUCTURES_URL")
	setString(&cfg.UserAgent, "USER_AGENT")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")

	// Rate limits and timeouts accept seconds ("1.5") or Go durations ("1500ms").
	setDuration := func(dst *time.Duration, key string) {
		s := strings.TrimSpace(os.Getenv(key))
		if s == "" {
			return
		}
		d, err := parseSeconds(s)
		if err != nil {
			log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid duration")
			return
		}
		*dst = d
	}
	setDuration(&cfg.RateLimit, "RATE_LIMIT")
	setDuration(&cfg.CourseRateLimit, "COURSE_RATE_LIMIT")
	setDuration(&cfg.ScheduleRateLimit, "SCHEDULE_RATE_LIMIT")
	setDuration(&cfg.SyllabusRateLimit, "SYLLABUS_RATE_LIMIT")
	setDuration(&cfg.APITimeout, "API_TIMEOUT")
	setDuration(&cfg.BrowserTimeout, "BROWSER_TIMEOUT")
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")

	setInt := func(dst *int, key string) {
		s := strings.TrimSpace(os.Getenv(key))
		if s == "" {
			return
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid integer")
			return
		}
		*dst = n
	}
	setInt(&cfg.MaxConcurrentJobs, "MAX_CONCURRENT_JOBS")
	setInt(&cfg.MaxConcurrentPDFs, "MAX_CONCURRENT_PDFS")
	setInt(&cfg.MaxPDFSizeMB, "MAX_PDF_SIZE_MB")
	setInt(&cfg.APIBatchSize, "API_BATCH_SIZE")

	if s := strings.TrimSpace(os.Getenv("MIN_CONFIDENCE")); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.MinConfidence = f
		} else {
			log.Warn().Str("env", "MIN_CONFIDENCE").Str("value", s).Msg("ignoring invalid number")
		}
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.RespectRobots, "RESPECT_ROBOTS")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.Verbose, "VERBOSE")
}

// parseSeconds reads a bare number as seconds, anything else as a Go
// duration.
func parseSeconds(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
