package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/ratelimit"
	"github.com/hyperifyio/goradar/internal/robots"
)

func testFactory(rm *robots.Manager) HTTPFactory {
	return HTTPFactory{
		Client:       &fetch.Client{MaxAttempts: 1, PerRequestTimeout: 5 * time.Second},
		Robots:       rm,
		WaitTimeout:  200 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc"})
		fmt.Fprint(w, `<html><body>
<a id="next" href="/turmas?page=2">próxima</a>
<form id="busca" method="post" action="/busca">
  <input type="hidden" name="javax.faces.ViewState" value="j_id1">
  <select name="nivel"><option value="G" selected>Graduação</option><option value="S">Stricto</option></select>
  <input type="text" name="semestre" value="">
  <input type="checkbox" name="todos" value="1">
  <input type="submit" name="buscar" value="Buscar">
</form></body></html>`)
	})
	mux.HandleFunc("/turmas", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><p class="page">%s</p></body></html>`, r.URL.Query().Get("page"))
	})
	mux.HandleFunc("/busca", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		_ = r.ParseForm()
		c, err := r.Cookie("JSESSIONID")
		cookie := ""
		if err == nil {
			cookie = c.Value
		}
		fmt.Fprintf(w, `<html><body><div id="result">%s|%s|%s|%s|%s|%s</div></body></html>`,
			r.PostForm.Get("javax.faces.ViewState"), r.PostForm.Get("nivel"), r.PostForm.Get("semestre"),
			r.PostForm.Get("todos"), r.PostForm.Get("buscar"), cookie)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_FillAndSubmitKeepsCookies(t *testing.T) {
	srv := newSiteServer(t)
	ctx := context.Background()
	err := With(ctx, testFactory(nil), ratelimit.New(0), func(a Accessor) error {
		if _, err := a.Open(ctx, srv.URL+"/"); err != nil {
			return err
		}
		if err := a.Fill(`input[name="semestre"]`, "2024.1"); err != nil {
			return err
		}
		doc, err := a.Click(ctx, `input[type="submit"]`)
		if err != nil {
			return err
		}
		got := doc.Find("#result").Text()
		if got != "j_id1|G|2024.1||Buscar|abc" {
			t.Fatalf("form post = %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
}

func TestSession_ClickFollowsLinks(t *testing.T) {
	srv := newSiteServer(t)
	ctx := context.Background()
	s, err := testFactory(nil).NewSession(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Open(ctx, srv.URL+"/"); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Click(ctx, "#next")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Find(".page").Text() != "2" {
		t.Fatalf("unexpected page: %s", doc.Text())
	}
	if cur, _ := s.Current(); cur != doc {
		t.Fatalf("current page not updated")
	}
}

func TestSession_WaitForTimesOut(t *testing.T) {
	srv := newSiteServer(t)
	ctx := context.Background()
	s, _ := testFactory(nil).NewSession(ctx, nil)
	defer s.Close()
	if _, err := s.Open(ctx, srv.URL+"/turmas?page=1"); err != nil {
		t.Fatal(err)
	}
	if sel, err := s.WaitFor(ctx, ".page", 0); err != nil || sel.Length() != 1 {
		t.Fatalf("present element: %v", err)
	}
	if _, err := s.WaitFor(ctx, "#never", 0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSession_RobotsDisallow(t *testing.T) {
	srv := newSiteServer(t)
	ctx := context.Background()
	rm := &robots.Manager{Client: &fetch.Client{MaxAttempts: 1}, UserAgent: "goradar"}
	s, _ := testFactory(rm).NewSession(ctx, ratelimit.New(0))
	defer s.Close()
	if _, err := s.Open(ctx, srv.URL+"/private/list"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
	if _, err := s.Open(ctx, srv.URL+"/turmas"); err != nil {
		t.Fatalf("allowed page: %v", err)
	}
}

func TestWith_ClosesOnErrorAndSessionRejectsUseAfterClose(t *testing.T) {
	srv := newSiteServer(t)
	ctx := context.Background()
	var kept Accessor
	boom := errors.New("boom")
	err := With(ctx, testFactory(nil), nil, func(a Accessor) error {
		kept = a
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, err := kept.Open(ctx, srv.URL+"/"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after With, got %v", err)
	}
	if _, err := kept.Current(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Current, got %v", err)
	}
}

func TestSession_PacedByLimiter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()
	ctx := context.Background()
	s, _ := testFactory(nil).NewSession(ctx, ratelimit.New(40*time.Millisecond))
	defer s.Close()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.Open(ctx, fmt.Sprintf("%s/p%d", srv.URL, i)); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) < 70*time.Millisecond || atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("requests not paced: %v, hits=%d", time.Since(start), hits)
	}
}

func TestDocument_ResolveAndText(t *testing.T) {
	d, err := NewDocument("https://ufx.edu.br/a/b.html", []byte(`<html><body><main><p>Ementa</p></main></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := d.Resolve("../docs/x.pdf"); !ok || u != "https://ufx.edu.br/docs/x.pdf" {
		t.Fatalf("resolve = %q", u)
	}
	if !strings.Contains(d.Text(), "Ementa") {
		t.Fatalf("text = %q", d.Text())
	}
}
