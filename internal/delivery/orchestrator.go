package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/record"
)

// Result is the outcome of one batch.
type Result struct {
	Kind      record.Kind `json:"kind"`
	Batch     int         `json:"batch"`
	Sent      int         `json:"itemsSent"`
	Processed int         `json:"itemsProcessed"`
	Errors    int         `json:"itemsWithError"`
	Detail    string      `json:"detail,omitempty"`
}

// Summary aggregates one delivery run.
type Summary struct {
	Success   bool       `json:"success"`
	Skipped   bool       `json:"skipped,omitempty"`
	Error     string     `json:"error,omitempty"`
	Results   []Result   `json:"results"`
	Sent      int        `json:"totalSent"`
	Processed int        `json:"totalProcessed"`
	Errors    int        `json:"totalErrors"`
	StartedAt time.Time  `json:"startedAt"`
	Duration  string     `json:"duration"`
	ByKind    []KindStat `json:"byKind,omitempty"`
}

// KindStat totals the batches of one kind.
type KindStat struct {
	Kind      record.Kind `json:"kind"`
	Sent      int         `json:"sent"`
	Processed int         `json:"processed"`
	Errors    int         `json:"errors"`
}

// Sink is the backend contract used by the orchestrator.
type Sink interface {
	Health(ctx context.Context) error
	Send(ctx context.Context, kind record.Kind, records []record.Record) (Ack, error)
}

// Orchestrator splits records by kind and delivers them in batches.
type Orchestrator struct {
	Sink       Sink
	BatchSize  int
	BatchDelay time.Duration
}

// NewOrchestrator uses the client's batch settings.
func NewOrchestrator(c *Client) *Orchestrator {
	return &Orchestrator{Sink: c, BatchSize: c.batchSize(), BatchDelay: c.batchDelay()}
}

// Deliver sends records grouped by kind. A failed health probe skips the
// whole run; a failed batch is recorded and the remaining batches still go
// out. The returned summary is the only report of failure.
func (o *Orchestrator) Deliver(ctx context.Context, records []record.Record) (sum Summary) {
	start := time.Now()
	sum = Summary{StartedAt: start.UTC(), Results: []Result{}}
	defer func() { sum.Duration = time.Since(start).Round(time.Millisecond).String() }()

	if len(records) == 0 {
		sum.Success = true
		return sum
	}
	if err := o.Sink.Health(ctx); err != nil {
		log.Warn().Err(err).Int("records", len(records)).Msg("delivery skipped")
		sum.Skipped = true
		sum.Error = err.Error()
		return finish(sum)
	}
	size := o.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	groups := record.GroupByKind(records)
	for _, kind := range record.Kinds {
		list := groups[kind]
		for i, n := 0, 0; i < len(list); i, n = i+size, n+1 {
			if n > 0 && o.BatchDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(o.BatchDelay):
				}
			}
			end := min(i+size, len(list))
			sum.Results = append(sum.Results, o.send(ctx, kind, n+1, list[i:end]))
		}
	}
	return finish(sum)
}

func (o *Orchestrator) send(ctx context.Context, kind record.Kind, batch int, list []record.Record) Result {
	res := Result{Kind: kind, Batch: batch, Sent: len(list)}
	logger := log.With().Str("kind", string(kind)).Int("batch", batch).Logger()
	if err := ctx.Err(); err != nil {
		res.Errors = len(list)
		res.Detail = err.Error()
		return res
	}
	ack, err := o.Sink.Send(ctx, kind, list)
	if err != nil {
		logger.Error().Err(err).Int("records", len(list)).Msg("batch delivery failed")
		res.Errors = len(list)
		res.Detail = err.Error()
		return res
	}
	res.Processed = ack.Processed
	res.Errors = ack.Errors
	logger.Info().Int("processed", ack.Processed).Int("errors", ack.Errors).Msg("batch delivered")
	return res
}

func finish(sum Summary) Summary {
	stats := make(map[record.Kind]*KindStat)
	for _, r := range sum.Results {
		sum.Sent += r.Sent
		sum.Processed += r.Processed
		sum.Errors += r.Errors
		st, ok := stats[r.Kind]
		if !ok {
			st = &KindStat{Kind: r.Kind}
			stats[r.Kind] = st
		}
		st.Sent += r.Sent
		st.Processed += r.Processed
		st.Errors += r.Errors
	}
	for _, k := range record.Kinds {
		if st, ok := stats[k]; ok {
			sum.ByKind = append(sum.ByKind, *st)
		}
	}
	sum.Success = !sum.Skipped && sum.Errors == 0
	return sum
}
