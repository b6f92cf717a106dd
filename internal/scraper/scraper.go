// Package scraper holds the extractor units, one per data kind, and the
// static registry that builds them. A unit composes a page session with the
// structure detector and strategies, or with the document pipeline, and
// returns unvalidated candidates.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hyperifyio/goradar/internal/document"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/validate"
)

var (
	// ErrUnknownKind is returned for kinds without a registered unit.
	ErrUnknownKind = errors.New("no extractor for kind")
	// ErrInvalidConfig wraps configuration rejected by Validate.
	ErrInvalidConfig = errors.New("invalid extractor config")
)

// SystemicError reports a failure that stops a unit from making any
// progress, such as an unreachable target or undecodable content.
type SystemicError struct {
	Kind record.Kind
	URL  string
	Err  error
}

func (e *SystemicError) Error() string {
	return fmt.Sprintf("%s extraction failed at %s: %v", e.Kind, e.URL, e.Err)
}

func (e *SystemicError) Unwrap() error { return e.Err }

// Unit is an extractor unit.
type Unit interface {
	Kind() record.Kind
	// Validate checks cfg without touching the network.
	Validate(cfg Config) error
	// Extract collects candidates. Malformed items are dropped, never
	// returned as errors. When ctx is done the unit starts no new page or
	// document and returns what it has with ctx.Err().
	Extract(ctx context.Context, cfg Config) ([]record.Candidate, error)
}

// Env is what units need from the application.
type Env struct {
	Pages     page.Factory
	Documents *document.Pipeline
	// URLs are the default target locators per kind. A job config "url"
	// overrides them.
	URLs map[record.Kind]string
	// Intervals are the minimum delays between requests per kind.
	Intervals map[record.Kind]time.Duration
	// Now is used for the default semester. Nil means time.Now.
	Now func() time.Time
}

var defaultIntervals = map[record.Kind]time.Duration{
	record.KindCourses:    time.Second,
	record.KindSchedules:  1500 * time.Millisecond,
	record.KindProfessors: time.Second,
	record.KindSyllabi:    2 * time.Second,
	record.KindComponents: time.Second,
	record.KindStructures: time.Second,
}

func (e Env) interval(kind record.Kind) time.Duration {
	if d, ok := e.Intervals[kind]; ok && d > 0 {
		return d
	}
	return defaultIntervals[kind]
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

type entry struct {
	description string
	schema      *validate.Schema
	build       func(Env, *validate.Schema) Unit
}

var registry = map[record.Kind]entry{
	record.KindCourses: {
		description: "Course catalog pages: code, name, credits, workload, department, prerequisites",
		schema:      validate.NewSchema(pagedSchema(nil)),
		build:       newCourses,
	},
	record.KindSchedules: {
		description: "Class offerings: class code, professor, schedule code, room, vacancies",
		schema:      validate.NewSchema(pagedSchema(nil)),
		build:       newSchedules,
	},
	record.KindProfessors: {
		description: "Professor directory: name, e-mail, title, department, Lattes CV, courses",
		schema:      validate.NewSchema(pagedSchema(nil)),
		build:       newProfessors,
	},
	record.KindSyllabi: {
		description: "Syllabus PDFs discovered on an index page, segmented and scored",
		schema:      validate.NewSchema(pagedSchema(map[string]any{"max_documents": map[string]any{"type": "integer", "minimum": 1}})),
		build:       newSyllabi,
	},
	record.KindComponents: {
		description: "Curricular components per degree course",
		schema:      validate.NewSchema(pagedSchema(perCourseProperties())),
		build:       newComponents,
	},
	record.KindStructures: {
		description: "Curricular structures: matrix, validity, workloads, components by period",
		schema:      validate.NewSchema(pagedSchema(perCourseProperties())),
		build:       newStructures,
	},
}

// New builds the unit for kind.
func New(kind record.Kind, env Env) (Unit, error) {
	e, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e.build(env, e.schema), nil
}

// Info describes a registered unit.
type Info struct {
	Kind        record.Kind    `json:"kind"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Catalog lists registered units sorted by kind.
func Catalog() []Info {
	out := make([]Info, 0, len(registry))
	for k, e := range registry {
		out = append(out, Info{Kind: k, Description: e.description, Schema: e.schema.Document()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Known reports whether kind has a unit.
func Known(kind record.Kind) bool {
	_, ok := registry[kind]
	return ok
}
