// Package job owns the job lifecycle: creation, the state machine, storage
// and the runner that executes extractor units for single jobs, batches and
// the course pipeline.
package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/scraper"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotRunning    = errors.New("job is not running")
	ErrTerminal      = errors.New("job already finished")
	ErrInvalidConfig = errors.New("invalid job config")
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every state in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus accepts any case of a known status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Request asks for one extraction.
type Request struct {
	Kind    record.Kind    `json:"kind"`
	Config  scraper.Config `json:"config,omitempty"`
	Deliver bool           `json:"deliver,omitempty"`
}

// Job is one tracked extraction.
type Job struct {
	ID           string            `json:"id"`
	Kind         record.Kind       `json:"kind"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	Progress     int               `json:"progress"`
	ResultsCount int               `json:"resultsCount"`
	Error        string            `json:"error,omitempty"`
	Config       scraper.Config    `json:"config,omitempty"`
	Deliver      bool              `json:"deliver,omitempty"`
	Report       record.Report     `json:"report"`
	Delivery     *delivery.Summary `json:"delivery,omitempty"`
}

// Start moves a pending job to running.
func (j *Job) Start(now time.Time) error {
	if j.Status != StatusPending {
		return fmt.Errorf("%w: cannot start %s job %s", ErrTerminal, j.Status, j.ID)
	}
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Progress = 0
	return nil
}

// SetProgress records progress of a running job, capped below 100.
func (j *Job) SetProgress(p int) {
	if j.Status != StatusRunning {
		return
	}
	j.Progress = max(j.Progress, min(p, 99))
}

// Complete records a successful extraction of n validated records.
func (j *Job) Complete(now time.Time, n int) error {
	if err := j.finish(now, StatusCompleted); err != nil {
		return err
	}
	j.ResultsCount = n
	j.Progress = 100
	return nil
}

// Fail records a job-level failure. Progress keeps its last value.
func (j *Job) Fail(now time.Time, cause error) error {
	if err := j.finish(now, StatusFailed); err != nil {
		return err
	}
	if cause != nil {
		j.Error = cause.Error()
	}
	return nil
}

// Cancel records a cancelled job that kept n records collected before the
// cancellation took effect.
func (j *Job) Cancel(now time.Time, n int) error {
	if err := j.finish(now, StatusCancelled); err != nil {
		return err
	}
	j.ResultsCount = n
	return nil
}

func (j *Job) finish(now time.Time, to Status) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: cannot move %s job %s to %s", ErrTerminal, j.Status, j.ID, to)
	}
	j.Status = to
	j.CompletedAt = &now
	return nil
}
