package job

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/scraper"
)

// Mode selects how the dependent pipeline stages run.
type Mode string

const (
	// ModeSequential runs courses, components and structures in order.
	ModeSequential Mode = "sequential"
	// ModePartialParallel runs courses, then components and structures
	// together.
	ModePartialParallel Mode = "partial-parallel"
)

// PipelineKinds are the stages in dependency order.
var PipelineKinds = []record.Kind{record.KindCourses, record.KindComponents, record.KindStructures}

// PipelineRequest configures a pipeline run. Configs are per kind; kinds
// without one use an empty config.
type PipelineRequest struct {
	Mode    Mode                           `json:"mode"`
	Configs map[record.Kind]scraper.Config `json:"configs,omitempty"`
	Deliver bool                           `json:"deliver,omitempty"`
}

// PipelineResult holds the stage jobs in order and the final delivery.
type PipelineResult struct {
	Jobs     []Job             `json:"jobs"`
	Delivery *delivery.Summary `json:"delivery,omitempty"`
}

// Pipeline collects courses first and hands their codes to the component
// and structure stages as course_codes, unless a stage config names its own.
func (r *Runner) Pipeline(ctx context.Context, req PipelineRequest) (PipelineResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeSequential
	}
	if mode != ModeSequential && mode != ModePartialParallel {
		return PipelineResult{}, fmt.Errorf("%w: unknown pipeline mode %q", ErrInvalidConfig, mode)
	}
	for _, k := range PipelineKinds {
		if _, err := r.prepare(Request{Kind: k, Config: req.Configs[k]}); err != nil {
			return PipelineResult{}, err
		}
	}

	courses, err := r.Execute(ctx, Request{Kind: record.KindCourses, Config: req.Configs[record.KindCourses]})
	if err != nil {
		return PipelineResult{}, err
	}
	res := PipelineResult{Jobs: []Job{courses}}
	codes, err := r.courseCodes(ctx, courses)
	if err != nil {
		return res, err
	}
	log.Info().Str("mode", string(mode)).Int("course_codes", len(codes)).Msg("pipeline courses collected")

	stages := PipelineKinds[1:]
	later := make([]Job, len(stages))
	run := func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := req.Configs[stages[i]]
		if len(codes) > 0 && len(cfg.Strings(scraper.KeyCourseCodes)) == 0 {
			cfg = cfg.Clone(map[string]any{scraper.KeyCourseCodes: codes})
		}
		j, err := r.Execute(ctx, Request{Kind: stages[i], Config: cfg})
		later[i] = j
		return err
	}
	if mode == ModeSequential {
		for i := range stages {
			if err = run(i); err != nil {
				break
			}
		}
	} else {
		var g errgroup.Group
		for i := range stages {
			g.Go(func() error { return run(i) })
		}
		err = g.Wait()
	}
	for _, j := range later {
		if j.ID != "" {
			res.Jobs = append(res.Jobs, j)
		}
	}
	if err != nil {
		return res, err
	}

	if req.Deliver && r.Sink != nil {
		ids := make([]string, 0, len(res.Jobs))
		for _, j := range res.Jobs {
			ids = append(ids, j.ID)
		}
		sum, err := r.Sync(context.WithoutCancel(ctx), ids)
		if err != nil {
			return res, err
		}
		res.Delivery = &sum
	}
	return res, nil
}

func (r *Runner) courseCodes(ctx context.Context, j Job) ([]string, error) {
	if j.Status != StatusCompleted {
		return nil, nil
	}
	recs, err := r.Store.Results(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(recs))
	for _, rec := range recs {
		if c, ok := rec.(record.Course); ok {
			codes = append(codes, c.Code)
		}
	}
	return codes, nil
}
