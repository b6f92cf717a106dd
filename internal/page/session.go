package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/ratelimit"
	"github.com/hyperifyio/goradar/internal/robots"
)

const defaultWaitTimeout = 30 * time.Second

// HTTPFactory builds sessions over plain HTTP with a private cookie jar.
type HTTPFactory struct {
	Client *fetch.Client
	// Robots, when set, is consulted before every navigation and download.
	Robots *robots.Manager
	// WaitTimeout is the default for WaitFor. Zero means 30s.
	WaitTimeout time.Duration
	// PollInterval is how often WaitFor reloads the page. Zero means 500ms.
	PollInterval time.Duration
}

// NewSession returns a fresh session. Each session owns its cookies and
// current page.
func (f HTTPFactory) NewSession(_ context.Context, lim *ratelimit.Limiter) (Accessor, error) {
	if f.Client == nil {
		return nil, errors.New("page: nil fetch client")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	hc := &http.Client{Jar: jar, Timeout: f.Client.PerRequestTimeout}
	if f.Client.HTTPClient != nil {
		base := *f.Client.HTTPClient
		base.Jar = jar
		hc = &base
	}
	wait := f.WaitTimeout
	if wait <= 0 {
		wait = defaultWaitTimeout
	}
	poll := f.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Session{
		client:  f.Client.WithHTTPClient(hc),
		robots:  f.Robots,
		limiter: lim,
		wait:    wait,
		poll:    poll,
		filled:  make(map[string]string),
	}, nil
}

// Session is an HTTP Accessor. It is not safe for use by more than one
// goroutine at a time.
type Session struct {
	client  *fetch.Client
	robots  *robots.Manager
	limiter *ratelimit.Limiter
	wait    time.Duration
	poll    time.Duration

	mu     sync.Mutex
	cur    *Document
	filled map[string]string
	closed bool
}

func (s *Session) Open(ctx context.Context, rawURL string) (*Document, error) {
	if err := s.before(ctx, rawURL); err != nil {
		return nil, err
	}
	resp, err := s.client.Page(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return s.load(resp)
}

func (s *Session) Current() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.cur == nil {
		return nil, ErrNoPage
	}
	return s.cur, nil
}

// WaitFor reloads the current page every poll interval until selector
// matches. Server-rendered pages that fill in asynchronously are covered by
// the reload.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (*goquery.Selection, error) {
	if timeout <= 0 {
		timeout = s.wait
	}
	deadline := time.Now().Add(timeout)
	for {
		doc, err := s.Current()
		if err != nil {
			return nil, err
		}
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel, nil
		}
		if time.Now().Add(s.poll).After(deadline) {
			return nil, fmt.Errorf("%w: %q after %s", ErrTimeout, selector, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
		if _, err := s.Open(ctx, doc.URL.String()); err != nil {
			log.Debug().Err(err).Str("url", doc.URL.String()).Msg("reload while waiting")
		}
	}
}

func (s *Session) Fill(selector, value string) error {
	doc, err := s.Current()
	if err != nil {
		return err
	}
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("%w: %q", ErrNoElement, selector)
	}
	name, ok := el.Attr("name")
	if !ok || name == "" {
		return fmt.Errorf("%w: %q has no name attribute", ErrNoElement, selector)
	}
	s.mu.Lock()
	s.filled[name] = value
	s.mu.Unlock()
	return nil
}

// Click follows an anchor's href or submits the form that contains the
// element. The pressed button's name and value are submitted with the form.
func (s *Session) Click(ctx context.Context, selector string) (*Document, error) {
	doc, err := s.Current()
	if err != nil {
		return nil, err
	}
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoElement, selector)
	}
	if goquery.NodeName(el) == "a" {
		href, _ := el.Attr("href")
		target, ok := doc.Resolve(href)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no followable href", ErrNoElement, selector)
		}
		return s.Open(ctx, target)
	}
	form := el.Closest("form")
	if form.Length() == 0 {
		return nil, fmt.Errorf("%w: %q is neither a link nor inside a form", ErrNoElement, selector)
	}
	s.mu.Lock()
	values := formValues(form, s.filled)
	s.filled = make(map[string]string)
	s.mu.Unlock()
	if name, ok := el.Attr("name"); ok && name != "" {
		v, _ := el.Attr("value")
		values.Set(name, v)
	}
	action, _ := form.Attr("action")
	target := doc.URL.String()
	if strings.TrimSpace(action) != "" {
		if t, ok := doc.Resolve(action); ok {
			target = t
		}
	}
	method, _ := form.Attr("method")
	if strings.EqualFold(method, http.MethodPost) {
		if err := s.before(ctx, target); err != nil {
			return nil, err
		}
		resp, err := s.client.PostForm(ctx, target, values)
		if err != nil {
			return nil, err
		}
		return s.load(resp)
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse form action: %w", err)
	}
	u.RawQuery = values.Encode()
	return s.Open(ctx, u.String())
}

// Download fetches a raw document through the session's robots and pacing
// checks, capped at maxBytes.
func (s *Session) Download(ctx context.Context, rawURL string, maxBytes int64) (*fetch.Response, error) {
	if err := s.before(ctx, rawURL); err != nil {
		return nil, err
	}
	return s.client.Download(ctx, rawURL, maxBytes)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.cur = nil
	s.filled = nil
	return nil
}

// before enforces closed state, robots rules and pacing ahead of a request.
func (s *Session) before(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.robots != nil {
		d, err := s.robots.Check(ctx, rawURL)
		if err != nil {
			return err
		}
		if !d.Allowed {
			return fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		s.limiter.Raise(d.CrawlDelay)
	}
	return s.limiter.Wait(ctx)
}

func (s *Session) load(resp *fetch.Response) (*Document, error) {
	doc, err := NewDocument(resp.URL, resp.Body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.cur = doc
	return doc, nil
}

// formValues serialises a form's successful controls, overlaying filled
// values by field name.
func formValues(form *goquery.Selection, filled map[string]string) url.Values {
	values := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, f *goquery.Selection) {
		name, _ := f.Attr("name")
		if _, disabled := f.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(f) {
		case "input":
			typ := strings.ToLower(f.AttrOr("type", "text"))
			switch typ {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := f.Attr("checked"); !checked {
					return
				}
				values.Add(name, f.AttrOr("value", "on"))
				return
			}
			values.Set(name, f.AttrOr("value", ""))
		case "select":
			opt := f.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = f.Find("option").First()
			}
			if opt.Length() > 0 {
				v, ok := opt.Attr("value")
				if !ok {
					v = strings.TrimSpace(opt.Text())
				}
				values.Set(name, v)
			}
		case "textarea":
			values.Set(name, f.Text())
		}
	})
	for k, v := range filled {
		if form.Find(fmt.Sprintf("[name=%q]", k)).Length() > 0 {
			values.Set(k, v)
		}
	}
	return values
}
