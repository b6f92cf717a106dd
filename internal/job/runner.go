package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/scraper"
	"github.com/hyperifyio/goradar/internal/validate"
)

const (
	// DefaultMaxConcurrent bounds simultaneous extractions in a batch.
	DefaultMaxConcurrent = 2
	// MaxConcurrentLimit is the largest accepted batch bound.
	MaxConcurrentLimit = 5
)

// ErrNoSink is returned by Sync when no delivery sink is configured.
var ErrNoSink = errors.New("no delivery sink configured")

// Deliverer sends records to the backend sink.
type Deliverer interface {
	Deliver(ctx context.Context, records []record.Record) delivery.Summary
}

// Persister saves validated records of completed jobs.
type Persister interface {
	SaveAll(ctx context.Context, records []record.Record) error
}

// Runner executes jobs. Jobs run in the calling goroutine for Run, Execute,
// RunBatch and Pipeline, and in the background for Start and StartBatch.
type Runner struct {
	Store     Store
	Env       scraper.Env
	Validator *validate.Validator
	// Sink receives records of completed jobs that asked for delivery.
	Sink Deliverer
	// Repository persists records of completed jobs when set.
	Repository Persister
	// MaxConcurrent is the batch bound used when a batch names none.
	MaxConcurrent int
	Now           func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner returns a runner over store with an in-memory store as default.
func NewRunner(store Store, env scraper.Env) *Runner {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Runner{Store: store, Env: env, Validator: &validate.Validator{}}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// prepare validates req and builds a pending job without storing it.
func (r *Runner) prepare(req Request) (Job, error) {
	unit, err := scraper.New(req.Kind, r.Env)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := unit.Validate(req.Config); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := req.Config
	if cfg == nil {
		cfg = scraper.Config{}
	}
	return Job{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Status:    StatusPending,
		CreatedAt: r.now(),
		Config:    cfg,
		Deliver:   req.Deliver,
	}, nil
}

// Create validates req and stores a pending job.
func (r *Runner) Create(ctx context.Context, req Request) (Job, error) {
	j, err := r.prepare(req)
	if err != nil {
		return Job{}, err
	}
	if err := r.Store.Save(ctx, j); err != nil {
		return Job{}, err
	}
	log.Info().Str("job_id", j.ID).Str("kind", string(j.Kind)).Msg("job created")
	return j, nil
}

// Execute creates and runs a job to completion.
func (r *Runner) Execute(ctx context.Context, req Request) (Job, error) {
	j, err := r.Create(ctx, req)
	if err != nil {
		return Job{}, err
	}
	return r.Run(ctx, j.ID)
}

// Start creates a job and runs it in the background. The job outlives ctx;
// stop it with Cancel.
func (r *Runner) Start(ctx context.Context, req Request) (Job, error) {
	j, err := r.Create(ctx, req)
	if err != nil {
		return Job{}, err
	}
	r.background(ctx, func(bg context.Context) { _, _ = r.Run(bg, j.ID) })
	return j, nil
}

func (r *Runner) background(ctx context.Context, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(bg)
	}()
}

// Wait blocks until background runs finish.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancels == nil {
		r.cancels = make(map[string]context.CancelFunc)
	}
	r.cancels[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// Run executes the pending job id. Extraction failures end in a Failed job,
// not an error; errors are returned only for unknown ids, illegal
// transitions and storage failures.
func (r *Runner) Run(ctx context.Context, id string) (Job, error) {
	j, err := r.Store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// store writes after cancellation must still land
	persist := context.WithoutCancel(ctx)

	if err := j.Start(r.now()); err != nil {
		return j, err
	}
	r.track(id, cancel)
	defer r.untrack(id)
	logger := log.With().Str("job_id", id).Str("kind", string(j.Kind)).Logger()
	logger.Info().Msg("job started")
	if err := r.Store.Save(persist, j); err != nil {
		return j, err
	}

	unit, err := scraper.New(j.Kind, r.Env)
	if err == nil {
		err = unit.Validate(j.Config)
	}
	if err != nil {
		return r.fail(persist, logger, j, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	j.SetProgress(10)

	cands, err := unit.Extract(ctx, j.Config)
	j.SetProgress(60)
	if err != nil && ctx.Err() == nil {
		return r.fail(persist, logger, j, err)
	}
	records, rep := r.validator().ConvertAll(cands)
	j.Report = rep
	j.SetProgress(90)
	if skipped := rep.Skipped; skipped > 0 {
		logger.Info().Int("skipped", skipped).Strs("reasons", rep.TopReasons()).Msg("candidates dropped")
	}

	if ctx.Err() != nil {
		if err := j.Cancel(r.now(), len(records)); err != nil {
			return j, err
		}
		logger.Warn().Int("records", len(records)).Msg("job cancelled")
	} else {
		if err := j.Complete(r.now(), len(records)); err != nil {
			return j, err
		}
		logger.Info().Int("records", len(records)).Float64("success_rate", rep.SuccessRate()).Msg("job completed")
	}
	if err := r.Store.SaveResults(persist, id, records); err != nil {
		return j, err
	}
	if j.Status == StatusCompleted {
		r.afterCompletion(persist, logger, &j, records)
	}
	return j, r.Store.Save(persist, j)
}

func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, j Job, cause error) (Job, error) {
	if err := j.Fail(r.now(), cause); err != nil {
		return j, err
	}
	logger.Error().Err(cause).Int("progress", j.Progress).Msg("job failed")
	return j, r.Store.Save(ctx, j)
}

// afterCompletion persists and delivers. Neither outcome changes the job
// status.
func (r *Runner) afterCompletion(ctx context.Context, logger zerolog.Logger, j *Job, records []record.Record) {
	if r.Repository != nil && len(records) > 0 {
		if err := r.Repository.SaveAll(ctx, records); err != nil {
			logger.Error().Err(err).Msg("persist records")
		}
	}
	if j.Deliver && r.Sink != nil {
		sum := r.Sink.Deliver(ctx, records)
		j.Delivery = &sum
	}
}

func (r *Runner) validator() *validate.Validator {
	if r.Validator == nil {
		return &validate.Validator{}
	}
	return r.Validator
}

func (r *Runner) batchBound(n int) (int, error) {
	if n == 0 {
		n = r.MaxConcurrent
	}
	if n == 0 {
		n = DefaultMaxConcurrent
	}
	if n < 1 || n > MaxConcurrentLimit {
		return 0, fmt.Errorf("%w: max concurrent must be between 1 and %d, got %d", ErrInvalidConfig, MaxConcurrentLimit, n)
	}
	return n, nil
}

// createAll validates every request before storing any job.
func (r *Runner) createAll(ctx context.Context, reqs []Request) ([]Job, error) {
	jobs := make([]Job, 0, len(reqs))
	for i, req := range reqs {
		j, err := r.prepare(req)
		if err != nil {
			return nil, fmt.Errorf("request %d (%s): %w", i+1, req.Kind, err)
		}
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		if err := r.Store.Save(ctx, j); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// RunBatch creates one job per request and runs them with at most
// maxConcurrent extractions active. Waiting jobs start in request order as
// slots free. A job's failure does not affect its siblings; once ctx is
// done no further job starts.
func (r *Runner) RunBatch(ctx context.Context, reqs []Request, maxConcurrent int) ([]Job, error) {
	n, err := r.batchBound(maxConcurrent)
	if err != nil {
		return nil, err
	}
	jobs, err := r.createAll(ctx, reqs)
	if err != nil {
		return nil, err
	}
	r.runAll(ctx, jobs, n)
	return r.reload(context.WithoutCancel(ctx), jobs)
}

// StartBatch is RunBatch in the background; it returns the pending jobs.
func (r *Runner) StartBatch(ctx context.Context, reqs []Request, maxConcurrent int) ([]Job, error) {
	n, err := r.batchBound(maxConcurrent)
	if err != nil {
		return nil, err
	}
	jobs, err := r.createAll(ctx, reqs)
	if err != nil {
		return nil, err
	}
	r.background(ctx, func(bg context.Context) { r.runAll(bg, jobs, n) })
	return jobs, nil
}

func (r *Runner) runAll(ctx context.Context, jobs []Job, n int) {
	sem := semaphore.NewWeighted(int64(n))
	var g errgroup.Group
	for i, j := range jobs {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			log.Warn().Int("not_started", len(jobs)-i).Msg("batch stopped")
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if _, err := r.Run(ctx, j.ID); err != nil {
				log.Error().Err(err).Str("job_id", j.ID).Msg("batch job")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) reload(ctx context.Context, jobs []Job) ([]Job, error) {
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		cur, err := r.Store.Get(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, nil
}

// Cancel stops a running job. Units in flight finish; no new page or
// document starts.
func (r *Runner) Cancel(ctx context.Context, id string) (Job, error) {
	j, err := r.Store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if j.Status != StatusRunning {
		return j, fmt.Errorf("%w: %s is %s", ErrNotRunning, id, j.Status)
	}
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		// running in another process
		return j, fmt.Errorf("%w: %s is not running here", ErrNotRunning, id)
	}
	cancel()
	log.Info().Str("job_id", id).Msg("cancellation requested")
	return j, nil
}

func (r *Runner) Get(ctx context.Context, id string) (Job, error) { return r.Store.Get(ctx, id) }

func (r *Runner) List(ctx context.Context, f Filter) ([]Job, error) { return r.Store.List(ctx, f) }

// Results returns the validated records of a job.
func (r *Runner) Results(ctx context.Context, id string) ([]record.Record, error) {
	return r.Store.Results(ctx, id)
}

// Stats counts jobs.
type Stats struct {
	Total    int                 `json:"total"`
	ByStatus map[Status]int      `json:"byStatus"`
	ByKind   map[record.Kind]int `json:"byKind"`
	Records  int                 `json:"records"`
}

func (r *Runner) Stats(ctx context.Context) (Stats, error) {
	jobs, err := r.Store.List(ctx, Filter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByStatus: make(map[Status]int), ByKind: make(map[record.Kind]int)}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	for _, j := range jobs {
		st.Total++
		st.ByStatus[j.Status]++
		st.ByKind[j.Kind]++
		st.Records += j.ResultsCount
	}
	return st, nil
}

// Sync delivers the records of the given completed jobs, or of every
// completed job when ids is empty.
func (r *Runner) Sync(ctx context.Context, ids []string) (delivery.Summary, error) {
	if r.Sink == nil {
		return delivery.Summary{}, ErrNoSink
	}
	var jobs []Job
	if len(ids) == 0 {
		var err error
		if jobs, err = r.Store.List(ctx, Filter{Status: StatusCompleted}); err != nil {
			return delivery.Summary{}, err
		}
	} else {
		for _, id := range ids {
			j, err := r.Store.Get(ctx, id)
			if err != nil {
				return delivery.Summary{}, err
			}
			jobs = append(jobs, j)
		}
	}
	var all []record.Record
	for _, j := range jobs {
		if j.Status != StatusCompleted {
			continue
		}
		recs, err := r.Store.Results(ctx, j.ID)
		if err != nil {
			return delivery.Summary{}, err
		}
		all = append(all, recs...)
	}
	return r.Sink.Deliver(ctx, all), nil
}
