// Package delivery sends validated records to the backend sink. Delivery
// outcomes are reported, never returned as job failures.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/record"
)

const (
	DefaultBaseURL    = "http://localhost:8080"
	DefaultBatchSize  = 50
	DefaultBatchDelay = 500 * time.Millisecond
	DefaultTimeout    = 30 * time.Second

	healthPath = "/actuator/health"
	sendPath   = "/api/v1/"
)

// ErrUnhealthy is recorded when the health probe fails and delivery is
// skipped.
var ErrUnhealthy = errors.New("sink unhealthy")

// Client talks to the backend sink over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// BatchSize is the number of records per request. Zero means 50.
	BatchSize int
	// BatchDelay is the pause between batches of one kind. Zero means
	// 500ms; negative disables it.
	BatchDelay time.Duration
	// Retry applies to connection failures and timeouts only.
	Retry fetch.RetryPolicy
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) batchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

func (c *Client) batchDelay() time.Duration {
	switch {
	case c.BatchDelay < 0:
		return 0
	case c.BatchDelay == 0:
		return DefaultBatchDelay
	}
	return c.BatchDelay
}

// Health probes the sink. Any status other than {"status":"UP"} is
// unhealthy.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, healthPath, nil, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if !strings.EqualFold(body.Status, "UP") {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, body.Status)
	}
	return nil
}

// Ack is the sink's answer to one batch.
type Ack struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Send posts one batch of records of a single kind.
func (c *Client) Send(ctx context.Context, kind record.Kind, records []record.Record) (Ack, error) {
	body, err := record.Envelope(kind, records)
	if err != nil {
		return Ack{}, fmt.Errorf("encode %s batch: %w", kind, err)
	}
	var ack Ack
	err = c.do(ctx, http.MethodPost, sendPath+string(kind), body, &ack)
	return ack, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	target := c.baseURL() + path
	_, err := fetch.Retry(ctx, c.Retry, func() (struct{}, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return struct{}{}, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			log.Debug().Int("status", resp.StatusCode).Str("url", target).Str("body", strings.TrimSpace(string(msg))).Msg("sink rejected request")
			return struct{}{}, &fetch.StatusError{Code: resp.StatusCode, URL: target}
		}
		if out == nil {
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return struct{}{}, fmt.Errorf("decode response: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}
