package scraper

import (
	"context"

	"github.com/hyperifyio/goradar/internal/document"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/validate"
)

type syllabiUnit struct {
	unit
	seen map[string]struct{}
}

func newSyllabi(env Env, s *validate.Schema) Unit {
	return &syllabiUnit{unit: newUnit(record.KindSyllabi, env, s)}
}

// Extract discovers syllabus documents on the index pages, then downloads
// and analyzes them through the document pipeline within the same session.
func (u *syllabiUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	u.seen = make(map[string]struct{})
	u.semester = ""
	pipeline := u.env.Documents
	if pipeline == nil {
		pipeline = &document.Pipeline{}
	}
	limit := cfg.Int(KeyMaxDocuments, 0)
	logger := u.logger()

	var out []record.Candidate
	err := u.session(ctx, func(a page.Accessor) error {
		var targets []document.Target
		err := u.visit(ctx, a, cfg, u.target(cfg), func(doc *page.Document) error {
			for _, t := range document.Discover(doc, u.semesterFor(cfg, doc)) {
				if _, dup := u.seen[t.URL]; dup {
					continue
				}
				if limit > 0 && len(targets) >= limit {
					break
				}
				u.seen[t.URL] = struct{}{}
				targets = append(targets, t)
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info().Int("documents", len(targets)).Msg("syllabus documents discovered")
		cands, rep := pipeline.ProcessAll(ctx, a, targets)
		if rep.Skipped > 0 {
			logger.Info().Int("skipped", rep.Skipped).Strs("reasons", rep.TopReasons()).Msg("syllabus documents dropped")
		}
		out = cands
		return ctx.Err()
	})
	return out, err
}
