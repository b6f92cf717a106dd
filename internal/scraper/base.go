package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/ratelimit"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/validate"
)

// unit carries what every extractor unit owns for one run: its limiter, its
// semester cache and the environment it was built with.
type unit struct {
	kind    record.Kind
	env     Env
	schema  *validate.Schema
	limiter *ratelimit.Limiter

	semester string
}

func newUnit(kind record.Kind, env Env, schema *validate.Schema) unit {
	return unit{kind: kind, env: env, schema: schema, limiter: ratelimit.New(env.interval(kind))}
}

func (u *unit) Kind() record.Kind { return u.kind }

func (u *unit) logger() zerolog.Logger {
	return log.With().Str("kind", string(u.kind)).Logger()
}

// Validate checks cfg against the kind's schema and makes sure a target
// locator is known.
func (u *unit) Validate(cfg Config) error {
	if err := u.schema.Check(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if u.env.Pages == nil {
		return fmt.Errorf("%w: no page factory configured", ErrInvalidConfig)
	}
	if u.target(cfg) == "" && cfg.String(KeyURLTemplate) == "" {
		return fmt.Errorf("%w: no target url for %s", ErrInvalidConfig, u.kind)
	}
	return nil
}

func (u *unit) target(cfg Config) string {
	if s := cfg.String(KeyURL); s != "" {
		return s
	}
	return u.env.URLs[u.kind]
}

// semesterFor resolves the semester once per run: config first, then the
// first page that names one, then the calendar.
func (u *unit) semesterFor(cfg Config, doc *page.Document) string {
	if u.semester != "" {
		return u.semester
	}
	switch s := cfg.String(KeySemester); {
	case s != "":
		u.semester = strings.ReplaceAll(s, "/", ".")
	case doc != nil && extract.Semester(doc.Text()) != "":
		u.semester = extract.Semester(doc.Text())
	default:
		now := u.env.now()
		half := 1
		if now.Month() > 6 {
			half = 2
		}
		u.semester = fmt.Sprintf("%d.%d", now.Year(), half)
	}
	return u.semester
}

// session runs fn inside a page session owned by this unit. The session is
// closed on every exit path.
func (u *unit) session(ctx context.Context, fn func(page.Accessor) error) error {
	return page.With(ctx, u.env.Pages, u.limiter, fn)
}

// inflight detaches a unit of work from cancellation so that it completes
// once started. Callers check ctx before starting the unit.
func inflight(ctx context.Context) context.Context { return context.WithoutCancel(ctx) }

// visit opens start, applies the configured form and wait, then hands each
// result page to each, following next_selector up to max_pages. A failure
// on the first page is systemic; later page failures end pagination.
func (u *unit) visit(ctx context.Context, a page.Accessor, cfg Config, start string, each func(*page.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := u.logger()
	doc, err := a.Open(inflight(ctx), start)
	if err != nil {
		return &SystemicError{Kind: u.kind, URL: start, Err: err}
	}
	if fields := cfg.Fields(KeyForm); len(fields) > 0 {
		for _, f := range fields {
			if err := a.Fill(f[0], f[1]); err != nil {
				return &SystemicError{Kind: u.kind, URL: start, Err: err}
			}
		}
		if doc, err = a.Click(inflight(ctx), cfg.String(KeySubmit)); err != nil {
			return &SystemicError{Kind: u.kind, URL: start, Err: fmt.Errorf("submit form: %w", err)}
		}
	}
	if sel := cfg.String(KeyWaitSelector); sel != "" {
		if _, err := a.WaitFor(ctx, sel, 0); err != nil {
			return &SystemicError{Kind: u.kind, URL: start, Err: err}
		}
		if doc, err = a.Current(); err != nil {
			return err
		}
	}
	maxPages := cfg.Int(KeyMaxPages, 1)
	next := cfg.String(KeyNextSelector)
	for n := 1; ; n++ {
		if err := each(doc); err != nil {
			return err
		}
		if next == "" || n >= maxPages || doc.Find(next).Length() == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if doc, err = a.Click(inflight(ctx), next); err != nil {
			logger.Warn().Err(err).Int("page", n+1).Msg("pagination stopped")
			return nil
		}
	}
}

// extractPage runs the structure detector and strategies over one page.
func (u *unit) extractPage(ctx context.Context, p extract.Profile, doc *page.Document) ([]record.Candidate, error) {
	src := doc.URL.String()
	shape, cands, err := extract.Run(ctx, doc.Document, p, src)
	lg := u.logger()
	lg.Debug().Str("url", src).Str("strategy", string(shape)).Int("candidates", len(cands)).Msg("page extracted")
	return cands, err
}

// pages is the common Extract body for units that read listing pages.
// keep filters and enriches each candidate; returning false drops it.
func (u *unit) pages(ctx context.Context, cfg Config, keep func(*record.Candidate, *page.Document) bool) ([]record.Candidate, error) {
	p, ok := extract.ProfileFor(u.kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, u.kind)
	}
	start := u.target(cfg)
	var out []record.Candidate
	err := u.session(ctx, func(a page.Accessor) error {
		return u.visit(ctx, a, cfg, start, func(doc *page.Document) error {
			cands, err := u.extractPage(ctx, p, doc)
			for i := range cands {
				if keep(&cands[i], doc) {
					out = append(out, cands[i])
				}
			}
			return err
		})
	})
	return out, err
}

// perCourse visits one page per course code when course_codes is set, or
// the configured url otherwise. Failures of single courses are logged and
// skipped; the run fails only when no course page could be read.
func (u *unit) perCourse(ctx context.Context, cfg Config, each func(code string, doc *page.Document) error) error {
	codes := cfg.Strings(KeyCourseCodes)
	tmpl := cfg.String(KeyURLTemplate)
	if env := u.env.URLs[u.kind]; tmpl == "" && strings.Contains(env, CodePlaceholder) {
		tmpl = env
	}
	if len(codes) == 0 || tmpl == "" {
		return u.session(ctx, func(a page.Accessor) error {
			return u.visit(ctx, a, cfg, u.target(cfg), func(doc *page.Document) error { return each("", doc) })
		})
	}
	return u.session(ctx, func(a page.Accessor) error {
		visited := make(map[string]struct{}, len(codes))
		var failures []error
		for _, code := range codes {
			code = strings.ToUpper(code)
			if _, dup := visited[code]; dup {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			visited[code] = struct{}{}
			target := strings.ReplaceAll(tmpl, CodePlaceholder, url.PathEscape(code))
			err := u.visit(ctx, a, cfg, target, func(doc *page.Document) error { return each(code, doc) })
			var sys *SystemicError
			switch {
			case errors.As(err, &sys):
				lg := u.logger()
				lg.Warn().Err(err).Str("course", code).Msg("course skipped")
				failures = append(failures, err)
			case err != nil:
				return err
			}
		}
		if len(failures) == len(visited) && len(failures) > 0 {
			return &SystemicError{Kind: u.kind, URL: tmpl, Err: errors.Join(failures...)}
		}
		return nil
	})
}
