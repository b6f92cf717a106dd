package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/goradar/internal/fetch"
)

func testClient() *fetch.Client {
	return &fetch.Client{MaxAttempts: 1, PerRequestTimeout: time.Second}
}

func TestManager_FetchesOncePerHost(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\nCrawl-delay: 2\n"))
	}))
	t.Cleanup(srv.Close)

	m := &Manager{Client: testClient(), UserAgent: "goradar/1.0", EntryExpiry: time.Hour}
	ctx := context.Background()

	d, err := m.Check(ctx, srv.URL+"/sigaa/public/curso/lista.jsf")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.CrawlDelay != 2*time.Second {
		t.Fatalf("unexpected decision %+v", d)
	}
	d, _ = m.Check(ctx, srv.URL+"/admin/users")
	if d.Allowed {
		t.Fatalf("expected /admin to be disallowed")
	}
	if hits != 1 {
		t.Fatalf("expected one robots fetch, got %d", hits)
	}
}

func TestManager_MissingRobotsAllows(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	m := &Manager{Client: testClient(), UserAgent: "goradar"}
	d, err := m.Check(context.Background(), srv.URL+"/anything")
	if err != nil || !d.Allowed {
		t.Fatalf("expected allow on 404, got %+v %v", d, err)
	}
}

func TestManager_ServerErrorDisallowsTemporarily(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	now := time.Now()
	m := &Manager{Client: testClient(), UserAgent: "goradar", EntryExpiry: time.Minute, now: func() time.Time { return now }}
	d, _ := m.Check(context.Background(), srv.URL+"/page")
	if d.Allowed {
		t.Fatalf("expected temporary disallow on 5xx")
	}
}

func TestRules_AgentPrecedenceAndSpecificity(t *testing.T) {
	t.Parallel()
	rules := Parse(`User-agent: goradar
Disallow: /private
Allow: /private/public

User-agent: *
Allow: /
`)
	if rules.Allowed("goradar/1.0", "/private/page") {
		t.Fatalf("expected disallow for goradar on /private/page")
	}
	if !rules.Allowed("goradar/1.0", "/private/public/info") {
		t.Fatalf("expected longer allow to win")
	}
	if !rules.Allowed("otherbot", "/private/page") {
		t.Fatalf("expected wildcard group to allow")
	}
}

func TestRules_WildcardsAnchorsAndDelay(t *testing.T) {
	t.Parallel()
	rules := Parse(`User-agent: *
Disallow: /*.pdf$
Allow: /ementas/*.pdf$
Disallow: /*?sessao=
Crawl-delay: 1.5 # seconds
`)
	if rules.Allowed("x", "/docs/a.pdf") {
		t.Fatalf("expected *.pdf disallowed")
	}
	if !rules.Allowed("x", "/ementas/MATA01.pdf") {
		t.Fatalf("expected more specific allow")
	}
	if rules.Allowed("x", "/index.jsf?sessao=1") {
		t.Fatalf("expected query pattern disallowed")
	}
	if rules.CrawlDelay("x") != 1500*time.Millisecond {
		t.Fatalf("crawl delay = %v", rules.CrawlDelay("x"))
	}
}
