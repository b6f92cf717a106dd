package scraper

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Config is the free-form configuration of one job. Values come from JSON,
// YAML or CLI flags, so accessors accept the shapes each produces.
type Config map[string]any

// Config keys understood by the units.
const (
	KeyURL          = "url"
	KeyURLTemplate  = "url_template"
	KeyCourseCodes  = "course_codes"
	KeySemester     = "semester"
	KeyMaxPages     = "max_pages"
	KeyNextSelector = "next_selector"
	KeyWaitSelector = "wait_selector"
	KeyForm         = "form"
	KeySubmit       = "submit"
	KeyMaxDocuments = "max_documents"
)

// CodePlaceholder is replaced by each course code in KeyURLTemplate.
const CodePlaceholder = "{code}"

// String returns a string value or "".
func (c Config) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer value or def when absent or not a whole number.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Strings returns a list value. A comma separated string is split.
func (c Config) Strings(key string) []string {
	var raw []string
	switch v := c[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, x := range v {
			raw = append(raw, fmt.Sprint(x))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Fields returns a selector to value map, sorted by selector for a stable
// fill order.
func (c Config) Fields(key string) [][2]string {
	var out [][2]string
	switch v := c[key].(type) {
	case map[string]string:
		for k, x := range v {
			out = append(out, [2]string{k, x})
		}
	case map[string]any:
		for k, x := range v {
			out = append(out, [2]string{k, fmt.Sprint(x)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Clone returns a shallow copy with extra merged over it.
func (c Config) Clone(extra map[string]any) Config {
	out := make(Config, len(c)+len(extra))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

const (
	urlPattern      = `^https?://`
	semesterPattern = `^20\d{2}[./][12]$`
	codePattern     = `^[A-Za-z]{2,6}\d{2,4}[A-Za-z]?$|^\d{3,8}$`
)

// pagedSchema is the JSON schema shared by every page-driven unit, with
// extra kind-specific properties.
func pagedSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		KeyURL:          map[string]any{"type": "string", "pattern": urlPattern},
		KeySemester:     map[string]any{"type": "string", "pattern": semesterPattern},
		KeyMaxPages:     map[string]any{"type": "integer", "minimum": 1, "maximum": 500},
		KeyNextSelector: map[string]any{"type": "string", "minLength": 1},
		KeyWaitSelector: map[string]any{"type": "string", "minLength": 1},
		KeyForm:         map[string]any{"type": "object", "additionalProperties": map[string]any{"type": []any{"string", "number"}}},
		KeySubmit:       map[string]any{"type": "string", "minLength": 1},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
		"dependentRequired":    map[string]any{KeyForm: []any{KeySubmit}},
	}
}

func perCourseProperties() map[string]any {
	return map[string]any{
		KeyURLTemplate: map[string]any{"type": "string", "pattern": urlPattern + `.*\{code\}`},
		KeyCourseCodes: map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "pattern": codePattern},
		},
	}
}
