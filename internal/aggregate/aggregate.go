// Package aggregate merges discovered document links from several discovery
// passes into one canonical, de-duplicated list.
package aggregate

import (
	"net/url"
	"strings"
)

// Link is a discovered document link with the text that labelled it.
type Link struct {
	URL  string
	Text string
	// Via names the discovery pass that found the link.
	Via string
}

// MergeLinks resolves links against base, canonicalises them, drops
// tracking parameters and de-duplicates by canonical URL. The first
// occurrence wins, so earlier passes take precedence.
func MergeLinks(base string, groups ...[]Link) []Link {
	baseURL, _ := url.Parse(base)
	seen := map[string]struct{}{}
	out := make([]Link, 0, 64)
	for _, g := range groups {
		for _, l := range g {
			key, ok := Canonical(baseURL, l.URL)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			l.URL = key
			l.Text = strings.TrimSpace(l.Text)
			out = append(out, l)
		}
	}
	return out
}

// Canonical resolves ref against base and normalises it. Only http(s)
// results are accepted.
func Canonical(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") || strings.HasPrefix(strings.ToLower(ref), "mailto:") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	normalizeURL(u)
	return u.String(), true
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid", "jsessionid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
