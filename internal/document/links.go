package document

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/goradar/internal/aggregate"
	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/page"
)

const (
	directSelector    = `a[href$=".pdf"], a[href$=".PDF"]`
	containerSelector = `.course-item, .disciplina, .discipline, .course, [class*="course"], [class*="disciplin"]`
	contextSelector   = "tr, li, .card, .course-item, .disciplina, .discipline, article"
)

var docHints = []string{"pdf", "ementa", "syllabus", "programa", "plano de ensino"}

// Discover finds syllabus document links on an index page. Passes run from
// most to least specific: direct PDF anchors, links inside course items,
// links in table rows, then any anchor hinting at a syllabus. Links are
// resolved, canonicalised and de-duplicated; the code and name of each
// target come from the text around its anchor.
func Discover(doc *page.Document, semester string) []Target {
	direct := anchors(doc.Find(directSelector), "direct", nil)
	items := anchors(doc.Find(containerSelector).Find("a[href]"), "container", looksLikeDocument)
	rows := anchors(doc.Find("tr").Find("a[href]"), "row", looksLikeDocument)
	generic := anchors(doc.Find("a[href]"), "generic", looksLikeDocument)

	links := aggregate.MergeLinks(doc.URL.String(), direct, items, rows, generic)
	out := make([]Target, 0, len(links))
	for _, l := range links {
		out = append(out, Target{
			URL:      l.URL,
			Code:     extract.ComponentCode(l.Text),
			Name:     extract.GuessName(l.Text),
			Semester: semester,
		})
	}
	return out
}

func anchors(sel *goquery.Selection, via string, keep func(href, text string) bool) []aggregate.Link {
	var out []aggregate.Link
	sel.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := extract.Flat(a)
		if keep != nil && !keep(href, text) {
			return
		}
		if ctx := a.Closest(contextSelector); ctx.Length() > 0 {
			text = extract.Flat(ctx)
		}
		out = append(out, aggregate.Link{URL: href, Text: text, Via: via})
	})
	return out
}

func looksLikeDocument(href, text string) bool {
	h := strings.ToLower(href)
	t := extract.Fold(text)
	for _, hint := range docHints {
		if strings.Contains(h, strings.ReplaceAll(hint, " ", "")) || strings.Contains(t, hint) {
			return true
		}
	}
	return false
}
