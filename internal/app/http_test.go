package app

import (
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestNewPoliteHTTPClient_Config(t *testing.T) {
	c := newPoliteHTTPClient(0)
	if c.Timeout != 30*time.Second {
		t.Fatalf("default timeout=%v, want 30s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected http.Transport")
	}
	if tr.MaxConnsPerHost == 0 || tr.MaxConnsPerHost > 16 {
		t.Fatalf("expected a small per-host connection cap, got %d", tr.MaxConnsPerHost)
	}
	// Ensure we didn't return the default client's transport
	if reflect.ValueOf(http.DefaultTransport).Pointer() == reflect.ValueOf(tr).Pointer() {
		t.Fatalf("transport should not be default")
	}
	if got := newPoliteHTTPClient(5 * time.Second).Timeout; got != 5*time.Second {
		t.Fatalf("timeout=%v, want 5s", got)
	}
}
