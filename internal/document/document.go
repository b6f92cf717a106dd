// Package document extracts structured syllabus content from PDF documents:
// a size-guarded download, two text backends compared by confidence,
// segmentation into named sections and a tunable confidence score.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/validate"
)

var (
	// ErrTooLarge is returned for documents above the byte ceiling. They are
	// rejected before any parsing.
	ErrTooLarge = errors.New("document too large")
	// ErrNotPDF is returned when the body lacks the %PDF signature.
	ErrNotPDF = errors.New("not a PDF document")
	// ErrNoText is returned when no backend produced text.
	ErrNoText = errors.New("no text extracted")
)

const (
	DefaultMaxBytes      = 50 << 20
	DefaultFallbackBelow = 0.5

	codeWindow = 500
	nameWindow = 200
)

var pdfMagic = []byte("%PDF")

// Downloader fetches raw bytes with a ceiling. Both fetch.Client and a page
// session satisfy it.
type Downloader interface {
	Download(ctx context.Context, rawURL string, maxBytes int64) (*fetch.Response, error)
}

// Fetch downloads rawURL, failing with ErrTooLarge above maxBytes and with
// ErrNotPDF when the body is not a PDF.
func Fetch(ctx context.Context, d Downloader, rawURL string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	resp, err := d.Download(ctx, rawURL, maxBytes)
	if err != nil {
		if errors.Is(err, fetch.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %s: %v", ErrTooLarge, rawURL, err)
		}
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if !bytes.HasPrefix(resp.Body, pdfMagic) {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, rawURL)
	}
	return resp.Body, nil
}

// Result is the analysis of one document.
type Result struct {
	Text       string
	Backend    string
	Sections   Sections
	Code       string
	Name       string
	Confidence float64
}

// Analyzer runs the backends over a document and scores the outcome.
type Analyzer struct {
	Weights Weights
	Primary Backend
	// Fallback runs when the primary result scores below FallbackBelow. The
	// better scoring result is kept.
	Fallback      Backend
	FallbackBelow float64
}

// NewAnalyzer returns an analyzer with the plain-text backend first and the
// row backend as fallback.
func NewAnalyzer(w Weights) *Analyzer {
	return &Analyzer{Weights: w, Primary: PlainText{}, Fallback: RowText{}, FallbackBelow: DefaultFallbackBelow}
}

// Analyze extracts and scores data. code and name, when known from the page
// that linked the document, take precedence over inferred values.
func (a *Analyzer) Analyze(data []byte, code, name string) (Result, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return Result{}, ErrNotPDF
	}
	best, ok := a.run(a.Primary, data, code, name)
	if a.Fallback != nil && (!ok || best.Confidence < a.FallbackBelow) {
		if alt, altOK := a.run(a.Fallback, data, code, name); altOK && (!ok || alt.Confidence > best.Confidence) {
			best, ok = alt, true
		}
	}
	if !ok {
		return Result{}, ErrNoText
	}
	return best, nil
}

func (a *Analyzer) run(b Backend, data []byte, code, name string) (Result, bool) {
	if b == nil {
		return Result{}, false
	}
	text, err := b.Text(data)
	if err != nil {
		log.Debug().Err(err).Str("backend", b.Name()).Msg("backend produced no text")
		return Result{}, false
	}
	r := a.AnalyzeText(text, code, name)
	r.Backend = b.Name()
	return r, true
}

// AnalyzeText segments and scores already extracted text.
func (a *Analyzer) AnalyzeText(text, code, name string) Result {
	clean := CleanText(text)
	r := Result{Text: clean, Sections: Segment(clean), Code: code, Name: name}
	if r.Code == "" {
		r.Code = InferCode(clean)
	}
	if r.Name == "" {
		r.Name = InferName(clean)
	}
	r.Confidence = a.Weights.Score(clean, r.Sections, r.Code != "" && r.Name != "")
	return r
}

// CleanText drops control characters, collapses spaces within lines and
// runs of blank lines.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return validate.SanitizeBlock(text)
}

var (
	labelledCodeRE = regexp.MustCompile(`(?i)(?:c[oó]digo|code|disciplina|componente)\s*[:\-]?\s*([A-Z]{4,6}\d{2,3}|[A-Z]{2,4}\d{3,4}[A-Z]?)\b`)
	labelledNameRE = regexp.MustCompile(`(?im)^\s*(?:disciplina|componente curricular|nome|course|subject)\s*[:\-]\s*(.+)$`)
	institutionRE  = regexp.MustCompile(`(?i)universidade|instituto|faculdade|departamento|pr[oó]-reitoria|colegiado|plano de ensino|programa de componente`)
)

// InferCode looks for a course code near the top of the document, preferring
// a labelled one.
func InferCode(text string) string {
	head := prefix(text, codeWindow)
	if m := labelledCodeRE.FindStringSubmatch(head); m != nil {
		return strings.ToUpper(m[1])
	}
	return extract.ComponentCode(head)
}

// InferName looks for the course name in the first lines: a labelled name,
// else the first title-like line that is not an institution banner.
func InferName(text string) string {
	head := prefix(text, nameWindow)
	if m := labelledNameRE.FindStringSubmatch(head); m != nil {
		if n := trimName(m[1]); n != "" {
			return n
		}
	}
	for _, l := range strings.Split(head, "\n") {
		if institutionRE.MatchString(l) {
			continue
		}
		if n := trimName(l); n != "" {
			return n
		}
	}
	return ""
}

func trimName(s string) string {
	s = extract.ComponentCodeRE.ReplaceAllString(s, "")
	s = strings.Trim(strings.TrimSpace(s), "-–:|")
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n <= 10 || n >= 100 {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(s)
	if !isUpperLetter(r) {
		return ""
	}
	return s
}

func isUpperLetter(r rune) bool {
	return strings.ToLower(string(r)) != string(r)
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
