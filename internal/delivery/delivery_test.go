package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/record"
)

type fakeSink struct {
	mu      sync.Mutex
	health  string
	fail    map[string]bool
	batches map[record.Kind][]int
	posts   int
}

func (f *fakeSink) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/actuator/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":%q}`, f.health)
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		kind := record.Kind(strings.TrimPrefix(r.URL.Path, "/api/v1/"))
		var body map[string][]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.posts++
		if f.fail[string(kind)] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if f.batches == nil {
			f.batches = make(map[record.Kind][]int)
		}
		n := len(body[string(kind)])
		f.batches[kind] = append(f.batches[kind], n)
		fmt.Fprintf(w, `{"processed":%d,"errors":0}`, n)
	})
	return mux
}

func courses(n int) []record.Record {
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, record.Course{Code: fmt.Sprintf("MAT%03d", 100+i), Name: "Cálculo", Credits: 4, Workload: 60})
	}
	return out
}

func newOrchestrator(url string) *Orchestrator {
	c := &Client{BaseURL: url, BatchSize: 2, BatchDelay: -1, Retry: fetch.RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}}
	return NewOrchestrator(c)
}

func TestDeliver_BatchesPerKind(t *testing.T) {
	sink := &fakeSink{health: "UP"}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	records := append(courses(5), record.ScheduleEntry{CourseCode: "MAT101", ClassCode: "T01", ScheduleText: "24M12"})
	sum := newOrchestrator(srv.URL).Deliver(context.Background(), records)

	require.True(t, sum.Success)
	require.Equal(t, []int{2, 2, 1}, sink.batches[record.KindCourses])
	require.Equal(t, []int{1}, sink.batches[record.KindSchedules])
	require.Equal(t, 6, sum.Sent)
	require.Equal(t, 6, sum.Processed)
	require.Len(t, sum.Results, 4)
	require.Equal(t, []KindStat{
		{Kind: record.KindCourses, Sent: 5, Processed: 5},
		{Kind: record.KindSchedules, Sent: 1, Processed: 1},
	}, sum.ByKind)
	require.NotEmpty(t, sum.Duration)
}

func TestDeliver_UnhealthySinkSkips(t *testing.T) {
	sink := &fakeSink{health: "DOWN"}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	sum := newOrchestrator(srv.URL).Deliver(context.Background(), courses(3))
	require.False(t, sum.Success)
	require.True(t, sum.Skipped)
	require.Contains(t, sum.Error, ErrUnhealthy.Error())
	require.Zero(t, sink.posts)
}

func TestDeliver_RejectedBatchIsRecordedNotRetried(t *testing.T) {
	sink := &fakeSink{health: "UP", fail: map[string]bool{"schedules": true}}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	records := append(courses(1), record.ScheduleEntry{CourseCode: "MAT101", ClassCode: "T01"})
	sum := newOrchestrator(srv.URL).Deliver(context.Background(), records)
	require.False(t, sum.Success)
	require.Equal(t, 1, sum.Errors)
	require.Equal(t, 2, sink.posts, "5xx from the sink is not retried")
	require.Contains(t, sum.Results[1].Detail, "500")
}

func TestClient_HealthRetriesConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := &Client{BaseURL: url, Retry: fetch.RetryPolicy{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond}}
	err := c.Health(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
}

func TestDeliver_EmptyIsSuccess(t *testing.T) {
	sum := newOrchestrator("http://127.0.0.1:1").Deliver(context.Background(), nil)
	require.True(t, sum.Success)
	require.Empty(t, sum.Results)
}
