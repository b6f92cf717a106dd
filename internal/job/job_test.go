package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/scraper"
	"github.com/hyperifyio/goradar/internal/validate"
)

func courseTable(codes ...string) string {
	var b strings.Builder
	b.WriteString(`<table><tr><th>Código</th><th>Nome</th><th>Créditos</th><th>CH</th></tr>`)
	for _, c := range codes {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>Disciplina %s</td><td>4</td><td>60</td></tr>`, c, c)
	}
	b.WriteString(`</table>`)
	return b.String()
}

const componentPage = `<html><body><table>
<tr><th>Código</th><th>Componente</th><th>CH</th></tr>
<tr><td>MATA37</td><td>Introdução à Lógica de Programação</td><td>68</td></tr>
<tr><td>MATA42</td><td>Matemática Discreta I</td><td>68</td></tr>
<tr><td>MATA38</td><td>Projeto de Circuitos Lógicos</td><td>68</td></tr>
</table></body></html>`

type site struct {
	*httptest.Server
	mu         sync.Mutex
	paths      []string
	slowStart  chan struct{}
	slowResume chan struct{}
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{slowStart: make(chan struct{}, 1), slowResume: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/cursos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>%s</body></html>`, courseTable("MAT101", "MAT102", "MAT103"))
	})
	mux.HandleFunc("/lento", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("p") {
		case "":
			fmt.Fprintf(w, `<html><body>%s<a class="next" href="/lento?p=2">2</a></body></html>`, courseTable("MAT101", "MAT102", "MAT103"))
		case "2":
			s.slowStart <- struct{}{}
			<-s.slowResume
			fmt.Fprintf(w, `<html><body>%s<a class="next" href="/lento?p=3">3</a></body></html>`, courseTable("MAT201", "MAT202", "MAT203"))
		default:
			fmt.Fprintf(w, `<html><body>%s</body></html>`, courseTable("MAT301", "MAT302", "MAT303"))
		}
	})
	mux.HandleFunc("/curso/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch parts[len(parts)-1] {
		case "componentes":
			fmt.Fprint(w, componentPage)
		case "estrutura":
			fmt.Fprintf(w, `<html><body><p>Estrutura Curricular: %s-2019</p><p>Vigência: 2019.1</p>
<h3>1º Período</h3><p>MATA37 Introdução à Lógica</p><h3>2º Período</h3><p>MATA38 Circuitos</p></body></html>`, parts[1])
		default:
			http.NotFound(w, r)
		}
	})
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.RequestURI())
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) hits(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func newTestRunner(s *site) *Runner {
	intervals := make(map[record.Kind]time.Duration)
	for _, k := range record.Kinds {
		intervals[k] = time.Millisecond
	}
	env := scraper.Env{
		Pages: page.HTTPFactory{Client: &fetch.Client{MaxAttempts: 1, PerRequestTimeout: 5 * time.Second}},
		URLs: map[record.Kind]string{
			record.KindCourses:    s.URL + "/cursos",
			record.KindProfessors: s.URL + "/docentes",
			record.KindComponents: s.URL + "/curso/{code}/componentes",
			record.KindStructures: s.URL + "/curso/{code}/estrutura",
		},
		Intervals: intervals,
		Now:       func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	return NewRunner(NewMemoryStore(), env)
}

func TestJob_Transitions(t *testing.T) {
	now := time.Now()
	j := Job{ID: "a", Status: StatusPending}
	require.ErrorIs(t, j.Complete(now, 1), ErrTerminal)
	require.NoError(t, j.Start(now))
	j.SetProgress(150)
	require.Equal(t, 99, j.Progress)
	require.NoError(t, j.Complete(now, 3))
	require.Equal(t, 100, j.Progress)
	require.NotNil(t, j.CompletedAt)
	require.ErrorIs(t, j.Cancel(now, 0), ErrTerminal)
	require.ErrorIs(t, j.Start(now), ErrTerminal)

	f := Job{ID: "b", Status: StatusPending}
	require.NoError(t, f.Start(now))
	f.SetProgress(40)
	require.NoError(t, f.Fail(now, errors.New("unreachable")))
	require.Equal(t, 40, f.Progress)
	require.Equal(t, "unreachable", f.Error)
	require.True(t, f.Status.Terminal())

	st, err := ParseStatus(" Running ")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, st)
	_, err = ParseStatus("paused")
	require.Error(t, err)
}

func TestRunner_ExecuteCompletesWithValidatedRecords(t *testing.T) {
	s := newSite(t)
	r := newTestRunner(s)
	ctx := context.Background()

	j, err := r.Execute(ctx, Request{Kind: record.KindCourses, Config: scraper.Config{scraper.KeySemester: "2024.1"}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, j.Status)
	require.Equal(t, 100, j.Progress)
	require.Equal(t, 3, j.ResultsCount)
	require.NotNil(t, j.StartedAt)
	require.NotNil(t, j.CompletedAt)

	recs, err := r.Results(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	c := recs[0].(record.Course)
	require.Equal(t, "MAT101", c.Code)
	require.Equal(t, "2024.1", c.Semester)
	require.Equal(t, validate.DefaultDepartment, c.Department)
}

func TestRunner_CreateRejectsInvalidConfig(t *testing.T) {
	r := newTestRunner(newSite(t))
	ctx := context.Background()
	_, err := r.Create(ctx, Request{Kind: record.KindCourses, Config: scraper.Config{"colour": "blue"}})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = r.Create(ctx, Request{Kind: "grades"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = r.Create(ctx, Request{Kind: record.KindSchedules})
	require.ErrorIs(t, err, ErrInvalidConfig, "no url for schedules")

	jobs, err := r.List(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestRunner_BatchIsolatesFailures(t *testing.T) {
	s := newSite(t)
	r := newTestRunner(s)
	jobs, err := r.RunBatch(context.Background(), []Request{
		{Kind: record.KindCourses},
		{Kind: record.KindProfessors},
		{Kind: record.KindComponents, Config: scraper.Config{scraper.KeyCourseCodes: []string{"112140"}}},
	}, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	require.Equal(t, StatusCompleted, jobs[0].Status)
	require.Equal(t, 3, jobs[0].ResultsCount)
	require.Equal(t, StatusFailed, jobs[1].Status)
	require.Contains(t, jobs[1].Error, "404")
	require.Equal(t, StatusCompleted, jobs[2].Status)
	require.Equal(t, 3, jobs[2].ResultsCount)

	_, err = r.RunBatch(context.Background(), []Request{{Kind: record.KindCourses}}, 6)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunner_CancelKeepsCollectedRecords(t *testing.T) {
	s := newSite(t)
	r := newTestRunner(s)
	ctx := context.Background()

	j, err := r.Start(ctx, Request{Kind: record.KindCourses, Config: scraper.Config{
		scraper.KeyURL:          s.URL + "/lento",
		scraper.KeyNextSelector: "a.next",
		scraper.KeyMaxPages:     3,
	}})
	require.NoError(t, err)

	select {
	case <-s.slowStart:
	case <-time.After(5 * time.Second):
		t.Fatal("second page never requested")
	}
	_, err = r.Cancel(ctx, j.ID)
	require.NoError(t, err)
	close(s.slowResume)
	r.Wait()

	got, err := r.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, 6, got.ResultsCount, "in-flight page completes")
	require.NotNil(t, got.CompletedAt)
	require.Zero(t, s.hits("/lento?p=3"))

	_, err = r.Cancel(ctx, j.ID)
	require.ErrorIs(t, err, ErrNotRunning)
	_, err = r.Cancel(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunner_PipelinePassesCourseCodes(t *testing.T) {
	for _, mode := range []Mode{ModeSequential, ModePartialParallel} {
		t.Run(string(mode), func(t *testing.T) {
			s := newSite(t)
			r := newTestRunner(s)
			res, err := r.Pipeline(context.Background(), PipelineRequest{Mode: mode})
			require.NoError(t, err)
			require.Len(t, res.Jobs, 3)
			for _, j := range res.Jobs {
				require.Equal(t, StatusCompleted, j.Status, "%s: %s", j.Kind, j.Error)
			}
			require.Equal(t, 9, res.Jobs[1].ResultsCount, "three components for each of three courses")
			require.Equal(t, 3, res.Jobs[2].ResultsCount)
			require.Equal(t, 1, s.hits("/curso/MAT102/estrutura"))

			recs, err := r.Results(context.Background(), res.Jobs[2].ID)
			require.NoError(t, err)
			st := recs[0].(record.Structure)
			require.Equal(t, "MAT101-2019", st.Code)
			require.Equal(t, []string{"MATA38"}, st.ComponentsByPeriod["2"])
		})
	}
}

type recordingSink struct {
	mu    sync.Mutex
	calls int
	got   []record.Record
}

func (s *recordingSink) Deliver(_ context.Context, recs []record.Record) delivery.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.got = append(s.got, recs...)
	return delivery.Summary{Success: true, Sent: len(recs)}
}

type unhealthySink struct{ calls int32 }

func (s *unhealthySink) Deliver(_ context.Context, recs []record.Record) delivery.Summary {
	atomic.AddInt32(&s.calls, 1)
	return delivery.Summary{Skipped: true, Error: delivery.ErrUnhealthy.Error()}
}

func TestRunner_DeliveryNeverChangesStatus(t *testing.T) {
	s := newSite(t)
	r := newTestRunner(s)
	sink := &unhealthySink{}
	r.Sink = sink
	j, err := r.Execute(context.Background(), Request{Kind: record.KindCourses, Deliver: true})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, j.Status)
	require.NotNil(t, j.Delivery)
	require.True(t, j.Delivery.Skipped)
	require.Equal(t, int32(1), atomic.LoadInt32(&sink.calls))
}

type memRepo struct{ saved []record.Record }

func (m *memRepo) SaveAll(_ context.Context, recs []record.Record) error {
	m.saved = append(m.saved, recs...)
	return nil
}

func TestRunner_SyncPersistAndStats(t *testing.T) {
	s := newSite(t)
	r := newTestRunner(s)
	repo := &memRepo{}
	r.Repository = repo
	ctx := context.Background()

	_, err := r.Sync(ctx, nil)
	require.ErrorIs(t, err, ErrNoSink)

	sink := &recordingSink{}
	r.Sink = sink
	_, err = r.Execute(ctx, Request{Kind: record.KindCourses})
	require.NoError(t, err)
	_, err = r.Execute(ctx, Request{Kind: record.KindProfessors})
	require.NoError(t, err)
	require.Len(t, repo.saved, 3)
	require.Zero(t, sink.calls, "delivery not requested")

	sum, err := r.Sync(ctx, nil)
	require.NoError(t, err)
	require.True(t, sum.Success)
	require.Len(t, sink.got, 3)

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Total)
	require.Equal(t, 1, st.ByStatus[StatusCompleted])
	require.Equal(t, 1, st.ByStatus[StatusFailed])
	require.Equal(t, 0, st.ByStatus[StatusRunning])
	require.Equal(t, 1, st.ByKind[record.KindProfessors])
	require.Equal(t, 3, st.Records)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []Status{StatusCompleted, StatusFailed, StatusCompleted, StatusRunning} {
		require.NoError(t, s.Save(ctx, Job{ID: fmt.Sprint(i), Kind: record.KindCourses, Status: st, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	got, err := s.List(ctx, Filter{Status: StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, []string{"2", "0"}, ids(got))

	got, err = s.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"3", "2"}, ids(got))

	_, err = s.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.SaveResults(ctx, "nope", nil), ErrNotFound)
}

func ids(jobs []Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, fmt.Sprintf("goradar-test-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	defer s.Close()

	base := time.Now().UTC().Truncate(time.Second)
	older := Job{ID: "older", Kind: record.KindCourses, Status: StatusCompleted, CreatedAt: base}
	newer := Job{ID: "newer", Kind: record.KindSchedules, Status: StatusPending, CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	got, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"newer", "older"}, ids(got))

	course := record.Course{Code: "MAT101", Name: "Cálculo I", Credits: 4, Workload: 60, Prerequisites: []string{}}
	require.NoError(t, s.SaveResults(ctx, "older", []record.Record{course}))
	recs, err := s.Results(ctx, "older")
	require.NoError(t, err)
	require.Equal(t, []record.Record{course}, recs)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
