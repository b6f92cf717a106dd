package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/record"
)

const catalogPage = `<html><body><table>
<tr><th>Código</th><th>Nome</th><th>Créditos</th><th>CH</th></tr>
<tr><td>MAT101</td><td>Cálculo I</td><td>4</td><td>60</td></tr>
<tr><td>FIS121</td><td>Física I</td><td>4</td><td>60</td></tr>
<tr><td>LET201</td><td>Leitura e Produção de Textos</td><td>2</td><td>30</td></tr>
</table></body></html>`

func testConfig(t *testing.T, siteURL string) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Defaults()
	cfg.RateLimit = time.Millisecond
	cfg.CourseRateLimit = time.Millisecond
	cfg.ScheduleRateLimit = time.Millisecond
	cfg.SyllabusRateLimit = time.Millisecond
	cfg.Retries = 1
	cfg.BrowserTimeout = 5 * time.Second
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.DatabaseDSN = filepath.Join(dir, "radar.db")
	cfg.CourseCatalogURL = siteURL + "/cursos"
	cfg.APIURL = siteURL + "/sink"
	cfg.APIBatchDelay = -1
	return cfg
}

func TestApp_RunPersistsAndExports(t *testing.T) {
	var robotsHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&robotsHits, 1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /privado\n")
	})
	mux.HandleFunc("/cursos", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, catalogPage)
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t, site.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	j, err := a.Runner().Execute(ctx, job.Request{Kind: record.KindCourses})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if j.Status != job.StatusCompleted || j.ResultsCount != 3 {
		t.Fatalf("job %s with %d results, want completed with 3", j.Status, j.ResultsCount)
	}
	if atomic.LoadInt32(&robotsHits) == 0 {
		t.Fatalf("robots.txt was not consulted")
	}

	got, err := a.Repository().FindByCode(ctx, record.KindCourses, "LET201")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	c := got.(record.Course)
	if c.Credits != 2 || c.Workload != 30 || c.ExtractorVersion != BuildVersion {
		t.Fatalf("unexpected stored course: %+v", c)
	}

	var buf bytes.Buffer
	if err := a.Export(ctx, "json", "", &buf); err != nil {
		t.Fatalf("export json: %v", err)
	}
	var grouped map[string][]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &grouped); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(grouped["courses"]) != 3 {
		t.Fatalf("exported %d courses, want 3", len(grouped["courses"]))
	}

	buf.Reset()
	if err := a.Export(ctx, "xlsx", record.KindCourses, &buf); err != nil {
		t.Fatalf("export xlsx: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx export is not a zip container")
	}

	buf.Reset()
	if err := a.Export(ctx, "pdf", "", &buf); err != nil {
		t.Fatalf("export pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("pdf export missing header")
	}

	if err := a.Export(ctx, "csv", "", &buf); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("want ErrUnknownFormat, got %v", err)
	}
}

// Without a database the export reads completed job results.
func TestApp_RecordsFromJobStore(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cursos" {
			fmt.Fprint(w, catalogPage)
			return
		}
		http.NotFound(w, r)
	}))
	defer site.Close()

	cfg := testConfig(t, site.URL)
	cfg.DatabaseDSN = ""
	cfg.RespectRobots = false
	ctx := context.Background()
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Repository() != nil {
		t.Fatalf("repository should be nil without DATABASE_DSN")
	}

	if _, err := a.Runner().Execute(ctx, job.Request{Kind: record.KindCourses}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	recs, err := a.Records(ctx, record.KindCourses)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	other, err := a.Records(ctx, record.KindProfessors)
	if err != nil || len(other) != 0 {
		t.Fatalf("professors: %d, %v", len(other), err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := Defaults()
	cfg.MaxConcurrentJobs = 9
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}
