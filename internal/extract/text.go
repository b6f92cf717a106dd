package extract

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Readable is the main text of a page.
type Readable struct {
	Title string
	Text  string
}

// FromHTML extracts readable text from HTML, preferring <main> or <article>
// and falling back to <body>. Navigation, footers and consent banners are
// skipped.
func FromHTML(input []byte) Readable {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Readable{}
	}
	var title string
	if t := findFirst(node, "title"); t != nil && t.FirstChild != nil {
		title = strings.TrimSpace(t.FirstChild.Data)
	}
	content := findFirst(node, "main")
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content)
	}
	return Readable{Title: title, Text: normalizeWhitespace(b.String())}
}

// NodeText returns the text of every node in sel with block elements on
// their own lines and table cells separated by spaces.
func NodeText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			collectText(&b, n)
			b.WriteString("\n")
		}
	})
	return normalizeWhitespace(b.String())
}

// Flat is NodeText collapsed onto one line.
func Flat(sel *goquery.Selection) string {
	return collapseSpaces(strings.TrimSpace(strings.ReplaceAll(NodeText(sel), "\n", " ")))
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if r := findFirst(c, tag); r != nil {
			return r
		}
	}
	return nil
}

var spaceReplacer = strings.NewReplacer("\t", " ", "\r", " ", "\u00a0", " ")

func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "nav", "footer", "iframe", "template":
			return
		case "br", "hr", "p", "div", "tr", "li", "ul", "ol", "table", "section",
			"h1", "h2", "h3", "h4", "h5", "h6", "dt", "dd":
			b.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(spaceReplacer.Replace(n.Data))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "td", "th":
			b.WriteString(" ")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li", "tr", "div", "dd":
			b.WriteString("\n")
		}
	}
}

// isBoilerplateContainer spots cookie and consent banners by id/class.
func isBoilerplateContainer(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "role" && !strings.HasPrefix(key, "data-") {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range []string{"cookie", "consent", "lgpd", "gdpr"} {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// Fold strips diacritics and lowercases s so "Avaliação" matches "avaliacao".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// Clean NFC-normalises s and collapses whitespace.
func Clean(s string) string {
	return collapseSpaces(strings.TrimSpace(norm.NFC.String(s)))
}
