package document

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/goradar/internal/record"
)

const (
	DefaultMinConfidence = 0.3
	DefaultMaxConcurrent = 3
)

// Target is one document to process, with whatever the linking page told
// about it.
type Target struct {
	URL      string
	Code     string
	Name     string
	Semester string
}

// Pipeline downloads and analyzes documents into syllabus candidates.
type Pipeline struct {
	Analyzer *Analyzer
	// MaxBytes is the download ceiling. Zero means 50 MB.
	MaxBytes int64
	// MinConfidence drops results scoring below it. Zero means 0.3.
	MinConfidence float64
	// MaxConcurrent bounds simultaneous downloads. Zero means 3.
	MaxConcurrent int
}

// Process downloads and analyzes one document. Oversized, non-PDF and low
// confidence documents are skips, not errors: the returned outcome carries
// the reason and the candidate is only valid when ok is true.
func (p *Pipeline) Process(ctx context.Context, d Downloader, t Target) (c record.Candidate, skip record.Outcome, ok bool) {
	logger := log.With().Str("url", t.URL).Logger()
	data, err := Fetch(ctx, d, t.URL, p.MaxBytes)
	switch {
	case errors.Is(err, ErrTooLarge):
		logger.Warn().Err(err).Msg("document dropped: too large")
		return c, record.Skip("size", "%v", err), false
	case errors.Is(err, ErrNotPDF):
		logger.Warn().Msg("document dropped: not a PDF")
		return c, record.Skip("format", "%v", err), false
	case err != nil:
		logger.Warn().Err(err).Msg("document download failed")
		return c, record.Skip("download", "%v", err), false
	}
	analyzer := p.Analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(DefaultWeights())
	}
	res, err := analyzer.Analyze(data, t.Code, t.Name)
	if err != nil {
		logger.Warn().Err(err).Msg("document dropped: no text")
		return c, record.Skip("text", "%v", err), false
	}
	if threshold := p.minConfidence(); res.Confidence < threshold {
		logger.Warn().Float64("confidence", res.Confidence).Float64("min", threshold).Msg("document dropped: low confidence")
		return c, record.Skip("confidence", "confidence %.2f below %.2f", res.Confidence, threshold), false
	}
	logger.Debug().Float64("confidence", res.Confidence).Str("backend", res.Backend).Msg("document extracted")
	return Candidate(res, t), record.Outcome{}, true
}

// ProcessAll processes targets with at most MaxConcurrent downloads in
// flight. Once ctx is done no new document is started; documents already
// in flight complete. Candidates keep the order of targets.
func (p *Pipeline) ProcessAll(ctx context.Context, d Downloader, targets []Target) ([]record.Candidate, record.Report) {
	n := p.MaxConcurrent
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	sem := semaphore.NewWeighted(int64(n))
	results := make([]*record.Candidate, len(targets))
	skips := make([]*record.Outcome, len(targets))
	inflight := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, t := range targets {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			log.Info().Int("remaining", len(targets)-i).Msg("document processing cancelled")
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			c, skip, ok := p.Process(inflight, d, t)
			if ok {
				results[i] = &c
			} else {
				skips[i] = &skip
			}
			return nil
		})
	}
	_ = g.Wait()

	var rep record.Report
	out := make([]record.Candidate, 0, len(targets))
	for i := range targets {
		switch {
		case results[i] != nil:
			out = append(out, *results[i])
		case skips[i] != nil:
			rep.Add(*skips[i])
		}
	}
	return out, rep
}

func (p *Pipeline) minConfidence() float64 {
	if p.MinConfidence <= 0 {
		return DefaultMinConfidence
	}
	return p.MinConfidence
}

// Candidate converts an analysis into a syllabus candidate.
func Candidate(res Result, t Target) record.Candidate {
	c := record.NewCandidate(record.KindSyllabi, "document:"+res.Backend, t.URL)
	c.Confidence = res.Confidence
	c.Set(record.FieldCourseCode, res.Code)
	c.Set(record.FieldName, res.Name)
	c.Set(record.FieldSemester, t.Semester)
	c.Set(record.FieldDocumentURL, t.URL)
	c.Set(record.FieldObjectives, res.Sections.Objectives)
	c.Set(record.FieldContent, res.Sections.Content)
	c.Set(record.FieldMethodology, res.Sections.Methodology)
	c.Set(record.FieldEvaluation, res.Sections.Evaluation)
	c.Lists[record.ListBibliography] = res.Sections.Bibliography
	c.Lists[record.ListCompetencies] = res.Sections.Competencies
	return c
}
