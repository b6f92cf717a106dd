// Package page is the page-content capability extractor units depend on:
// open a locator, query the rendered DOM, wait for elements, fill and submit
// forms, download raw bytes. Sessions are exclusively owned by one unit and
// released through With.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/aggregate"
	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/ratelimit"
)

var (
	ErrClosed     = errors.New("page: session closed")
	ErrDisallowed = errors.New("page: disallowed by robots.txt")
	ErrTimeout    = errors.New("page: wait timed out")
	ErrNoElement  = errors.New("page: element not found")
	ErrNoPage     = errors.New("page: no page open")
)

// Accessor is one browsing session.
type Accessor interface {
	// Open navigates to rawURL and returns the loaded document.
	Open(ctx context.Context, rawURL string) (*Document, error)
	// Current returns the document of the last navigation.
	Current() (*Document, error)
	// WaitFor returns the elements matching selector once present, or
	// ErrTimeout after timeout. Zero timeout uses the session default.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (*goquery.Selection, error)
	// Fill sets the value of the form field matching selector.
	Fill(selector, value string) error
	// Click follows the link or submits the form of the element matching
	// selector and returns the resulting document.
	Click(ctx context.Context, selector string) (*Document, error)
	// Download fetches raw bytes with a size ceiling.
	Download(ctx context.Context, rawURL string, maxBytes int64) (*fetch.Response, error)
	Close() error
}

// Factory creates sessions paced by the given limiter.
type Factory interface {
	NewSession(ctx context.Context, lim *ratelimit.Limiter) (Accessor, error)
}

// With opens a session, runs fn and closes the session on every exit path.
// A close error is joined to fn's error.
func With(ctx context.Context, f Factory, lim *ratelimit.Limiter, fn func(Accessor) error) (err error) {
	s, err := f.NewSession(ctx, lim)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && !errors.Is(cerr, ErrClosed) {
			log.Warn().Err(cerr).Msg("close session")
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// Document is a loaded HTML page.
type Document struct {
	*goquery.Document
	URL *url.URL
	Raw []byte
}

// NewDocument parses body loaded from rawURL.
func NewDocument(rawURL string, body []byte) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Url = u
	return &Document{Document: doc, URL: u, Raw: body}, nil
}

// Resolve makes ref absolute against the document URL.
func (d *Document) Resolve(ref string) (string, bool) {
	return aggregate.Canonical(d.URL, ref)
}

// Text returns the readable text of the page.
func (d *Document) Text() string {
	return extract.FromHTML(d.Raw).Text
}
