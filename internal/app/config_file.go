package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/goradar/internal/document"
)

// FileConfig represents the single-file configuration schema. Durations
// accept seconds ("1.5") or Go durations ("1500ms").
type FileConfig struct {
	RateLimit struct {
		Default   string `yaml:"default" json:"default"`
		Courses   string `yaml:"courses" json:"courses"`
		Schedules string `yaml:"schedules" json:"schedules"`
		Syllabi   string `yaml:"syllabi" json:"syllabi"`
	} `yaml:"rateLimit" json:"rateLimit"`

	Robots *struct {
		Respect *bool `yaml:"respect" json:"respect"`
	} `yaml:"robots" json:"robots"`
	UserAgent      string `yaml:"userAgent" json:"userAgent"`
	BrowserTimeout string `yaml:"browserTimeout" json:"browserTimeout"`

	Retry struct {
		Attempts int    `yaml:"attempts" json:"attempts"`
		Initial  string `yaml:"initial" json:"initial"`
		Max      string `yaml:"max" json:"max"`
	} `yaml:"retry" json:"retry"`

	Jobs struct {
		MaxConcurrent int `yaml:"maxConcurrent" json:"maxConcurrent"`
	} `yaml:"jobs" json:"jobs"`

	Documents struct {
		MaxConcurrent int     `yaml:"maxConcurrent" json:"maxConcurrent"`
		MaxSizeMB     int     `yaml:"maxSizeMB" json:"maxSizeMB"`
		MinConfidence float64 `yaml:"minConfidence" json:"minConfidence"`
		FallbackBelow float64 `yaml:"fallbackBelow" json:"fallbackBelow"`
	} `yaml:"documents" json:"documents"`

	// Confidence replaces individual score coefficients; omitted ones keep
	// their defaults.
	Confidence *document.Weights `yaml:"confidence" json:"confidence"`

	URLs struct {
		Courses    string `yaml:"courses" json:"courses"`
		Schedules  string `yaml:"schedules" json:"schedules"`
		Syllabi    string `yaml:"syllabi" json:"syllabi"`
		Professors string `yaml:"professors" json:"professors"`
		Components string `yaml:"components" json:"components"`
		Structures string `yaml:"structures" json:"structures"`
	} `yaml:"urls" json:"urls"`

	API struct {
		URL        string `yaml:"url" json:"url"`
		Timeout    string `yaml:"timeout" json:"timeout"`
		BatchSize  int    `yaml:"batchSize" json:"batchSize"`
		BatchDelay string `yaml:"batchDelay" json:"batchDelay"`
	} `yaml:"api" json:"api"`

	Cache struct {
		Dir    string `yaml:"dir" json:"dir"`
		MaxAge string `yaml:"maxAge" json:"maxAge"`
		Clear  bool   `yaml:"clear" json:"clear"`
	} `yaml:"cache" json:"cache"`

	Database struct {
		DSN    string `yaml:"dsn" json:"dsn"`
		Driver string `yaml:"driver" json:"driver"`
	} `yaml:"database" json:"database"`

	Redis struct {
		Addr   string `yaml:"addr" json:"addr"`
		Prefix string `yaml:"prefix" json:"prefix"`
	} `yaml:"redis" json:"redis"`

	HTTPAddr string `yaml:"httpAddr" json:"httpAddr"`
	Log      struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs on top of
// Defaults and before the environment and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	durations := []struct {
		dst  *time.Duration
		src  string
		name string
	}{
		{&cfg.RateLimit, fc.RateLimit.Default, "rateLimit.default"},
		{&cfg.CourseRateLimit, fc.RateLimit.Courses, "rateLimit.courses"},
		{&cfg.ScheduleRateLimit, fc.RateLimit.Schedules, "rateLimit.schedules"},
		{&cfg.SyllabusRateLimit, fc.RateLimit.Syllabi, "rateLimit.syllabi"},
		{&cfg.BrowserTimeout, fc.BrowserTimeout, "browserTimeout"},
		{&cfg.RetryInitial, fc.Retry.Initial, "retry.initial"},
		{&cfg.RetryMax, fc.Retry.Max, "retry.max"},
		{&cfg.APITimeout, fc.API.Timeout, "api.timeout"},
		{&cfg.APIBatchDelay, fc.API.BatchDelay, "api.batchDelay"},
		{&cfg.CacheMaxAge, fc.Cache.MaxAge, "cache.maxAge"},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		v, err := parseSeconds(d.src)
		if err != nil {
			return fmt.Errorf("%w: config file: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dst = v
	}

	strs := []struct {
		dst *string
		src string
	}{
		{&cfg.UserAgent, fc.UserAgent},
		{&cfg.CourseCatalogURL, fc.URLs.Courses},
		{&cfg.ScheduleSystemURL, fc.URLs.Schedules},
		{&cfg.SyllabusIndexURL, fc.URLs.Syllabi},
		{&cfg.ProfessorDirectoryURL, fc.URLs.Professors},
		{&cfg.ComponentsURL, fc.URLs.Components},
		{&cfg.StructuresURL, fc.URLs.Structures},
		{&cfg.APIURL, fc.API.URL},
		{&cfg.CacheDir, fc.Cache.Dir},
		{&cfg.DatabaseDSN, fc.Database.DSN},
		{&cfg.DatabaseDriver, fc.Database.Driver},
		{&cfg.RedisAddr, fc.Redis.Addr},
		{&cfg.RedisPrefix, fc.Redis.Prefix},
		{&cfg.HTTPAddr, fc.HTTPAddr},
		{&cfg.LogLevel, fc.Log.Level},
		{&cfg.LogFormat, fc.Log.Format},
	}
	for _, s := range strs {
		if s.src != "" {
			*s.dst = s.src
		}
	}

	ints := []struct {
		dst *int
		src int
	}{
		{&cfg.Retries, fc.Retry.Attempts},
		{&cfg.MaxConcurrentJobs, fc.Jobs.MaxConcurrent},
		{&cfg.MaxConcurrentPDFs, fc.Documents.MaxConcurrent},
		{&cfg.MaxPDFSizeMB, fc.Documents.MaxSizeMB},
		{&cfg.APIBatchSize, fc.API.BatchSize},
	}
	for _, n := range ints {
		if n.src != 0 {
			*n.dst = n.src
		}
	}

	if fc.Documents.MinConfidence != 0 {
		cfg.MinConfidence = fc.Documents.MinConfidence
	}
	if fc.Documents.FallbackBelow != 0 {
		cfg.FallbackBelow = fc.Documents.FallbackBelow
	}
	if fc.Confidence != nil {
		cfg.Confidence = mergeWeights(cfg.Confidence, *fc.Confidence)
	}
	if fc.Robots != nil && fc.Robots.Respect != nil {
		cfg.RespectRobots = *fc.Robots.Respect
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	return nil
}

func mergeWeights(base, over document.Weights) document.Weights {
	out := base
	if over.Base != 0 {
		out.Base = over.Base
	}
	if over.BaseMinLength != 0 {
		out.BaseMinLength = over.BaseMinLength
	}
	if len(over.Sections) > 0 {
		out.Sections = make(map[document.Section]float64, len(base.Sections))
		for k, v := range base.Sections {
			out.Sections[k] = v
		}
		for k, v := range over.Sections {
			out.Sections[k] = v
		}
	}
	if over.ShortBelow != 0 {
		out.ShortBelow = over.ShortBelow
	}
	if over.ShortFactor != 0 {
		out.ShortFactor = over.ShortFactor
	}
	if over.LongAbove != 0 {
		out.LongAbove = over.LongAbove
	}
	if over.LongFactor != 0 {
		out.LongFactor = over.LongFactor
	}
	if over.Identity != 0 {
		out.Identity = over.Identity
	}
	return out
}
