// Package robots decides whether a page may be visited and how long to wait
// between requests to a host, based on the host's robots.txt.
package robots

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/fetch"
)

const maxRobotsBytes = 512 * 1024

// Manager fetches and memoises robots.txt per host.
type Manager struct {
	Client    *fetch.Client
	UserAgent string
	// EntryExpiry bounds how long rules are reused. Zero means 30 minutes.
	EntryExpiry time.Duration

	mu  sync.Mutex
	mem map[string]entry
	now func() time.Time
}

type entry struct {
	rules  Rules
	expiry time.Time
}

// Decision is the outcome for one page URL.
type Decision struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// Check returns whether pageURL may be fetched and the host's crawl delay.
func (m *Manager) Check(ctx context.Context, pageURL string) (Decision, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return Decision{}, fmt.Errorf("parse url %q: %w", pageURL, errors.Join(err, errors.New("missing host")))
	}
	rules := m.rulesFor(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return Decision{
		Allowed:    rules.Allowed(m.UserAgent, path),
		CrawlDelay: rules.CrawlDelay(m.UserAgent),
	}, nil
}

func (m *Manager) rulesFor(ctx context.Context, robotsURL string) Rules {
	m.mu.Lock()
	if m.now == nil {
		m.now = time.Now
	}
	if m.mem == nil {
		m.mem = make(map[string]entry)
	}
	if e, ok := m.mem[robotsURL]; ok && m.now().Before(e.expiry) {
		m.mu.Unlock()
		return e.rules
	}
	m.mu.Unlock()

	rules := m.load(ctx, robotsURL)
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = 30 * time.Minute
	}
	m.mu.Lock()
	m.mem[robotsURL] = entry{rules: rules, expiry: m.now().Add(exp)}
	m.mu.Unlock()
	return rules
}

// load maps fetch outcomes to rules: a missing file allows everything,
// while auth failures, server errors and timeouts disallow the host until
// the entry expires.
func (m *Manager) load(ctx context.Context, robotsURL string) Rules {
	client := m.Client
	if client == nil {
		client = &fetch.Client{MaxAttempts: 1, PerRequestTimeout: 10 * time.Second}
	}
	resp, err := client.Download(ctx, robotsURL, maxRobotsBytes)
	if err == nil {
		return Parse(string(resp.Body))
	}
	var se *fetch.StatusError
	if errors.As(err, &se) && se.Code != http.StatusUnauthorized && se.Code != http.StatusForbidden {
		return AllowAll()
	}
	log.Warn().Err(err).Str("url", robotsURL).Msg("robots.txt unavailable; host temporarily disallowed")
	return DisallowAll()
}
