package job

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperifyio/goradar/internal/record"
)

// Filter narrows List. Zero values match everything; Limit <= 0 is
// unbounded.
type Filter struct {
	Status Status
	Kind   record.Kind
	Limit  int
}

func (f Filter) match(j Job) bool {
	return (f.Status == "" || j.Status == f.Status) && (f.Kind == "" || j.Kind == f.Kind)
}

// Store keeps jobs and their validated records.
type Store interface {
	Save(ctx context.Context, j Job) error
	Get(ctx context.Context, id string) (Job, error)
	// List returns matching jobs, newest first.
	List(ctx context.Context, f Filter) ([]Job, error)
	SaveResults(ctx context.Context, id string, records []record.Record) error
	Results(ctx context.Context, id string) ([]record.Record, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	results map[string][]record.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job), results: make(map[string][]record.Record)}
}

func (s *MemoryStore) Save(_ context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Job, error) {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.match(j) {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveResults(_ context.Context, id string, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	s.results[id] = append([]record.Record(nil), records...)
	return nil
}

func (s *MemoryStore) Results(_ context.Context, id string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]record.Record(nil), s.results[id]...), nil
}

func sortNewestFirst(jobs []Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID > jobs[k].ID
	})
}
