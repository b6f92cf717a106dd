package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/validate"
)

var (
	structureCodeRE = regexp.MustCompile(`(?i)(?:c[óo]digo\s+(?:da\s+)?estrutura|estrutura\s+curricular|structure\s+code)\s*:?\s*([A-Za-z0-9][A-Za-z0-9./-]{0,19})`)
	matrixRE        = regexp.MustCompile(`(?i)matriz(?:\s+curricular)?\s*:?\s*([^\n|]{2,80})`)
	validityRE      = regexp.MustCompile(`(?i)(?:vig[êe]ncia|per[íi]odo\s+letivo\s+de\s+entrada\s+em\s+vigor|in[íi]cio\s+de\s+funcionamento)\s*:?\s*(20\d{2}\s*[./]\s*[12])`)
	mandatoryCHRE   = regexp.MustCompile(`(?i)(?:ch|carga\s+hor[áa]ria)\s+(?:total\s+)?(?:obrigat[óo]ria|m[íi]nima\s+obrigat[óo]ria)[^\d\n]{0,20}(\d{2,5})`)
	optionalCHRE    = regexp.MustCompile(`(?i)(?:ch|carga\s+hor[áa]ria)\s+(?:total\s+)?(?:optativa|m[íi]nima\s+optativa)[^\d\n]{0,20}(\d{2,5})`)
	periodRE        = regexp.MustCompile(`(?i)\b(\d{1,2})\s*[ºo°ªa]?\s*(?:per[íi]odo|n[íi]vel|semestre)\b|\b(?:per[íi]odo|n[íi]vel|semestre)\s*:?\s*(\d{1,2})\b`)
)

const periodSelector = "h1, h2, h3, h4, h5, caption, tr, li, p"

type structuresUnit struct {
	unit
	seen map[string]struct{}
}

func newStructures(env Env, s *validate.Schema) Unit {
	return &structuresUnit{unit: newUnit(record.KindStructures, env, s)}
}

// Extract reads the curricular structure page of each configured course.
// One page yields at most one structure.
func (u *structuresUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	u.seen = make(map[string]struct{})
	var out []record.Candidate
	err := u.perCourse(ctx, cfg, func(course string, doc *page.Document) error {
		c, ok := parseStructure(doc.Document, course, doc.URL.String())
		if !ok {
			lg := u.logger()
			lg.Debug().Str("url", doc.URL.String()).Msg("no structure on page")
			return nil
		}
		key := c.Get(record.FieldCourseCode) + "/" + c.Get(record.FieldCode)
		if _, dup := u.seen[key]; dup {
			return nil
		}
		u.seen[key] = struct{}{}
		out = append(out, c)
		return nil
	})
	return out, err
}

// parseStructure builds a structure candidate from a curriculum page.
// Component codes are assigned to the period heading that precedes them;
// codes seen before any period heading go to period 0. When the page shows
// no structure code one is derived from the course and validity.
func parseStructure(doc *goquery.Document, courseCode, source string) (record.Candidate, bool) {
	c := record.NewCandidate(record.KindStructures, "structure", source)
	c.Periods = make(map[string][]string)
	text := extract.NodeText(doc.Selection)

	if courseCode == "" {
		courseCode = extract.CourseCode(text)
	}
	c.Set(record.FieldCourseCode, courseCode)
	c.Set(record.FieldMatrix, strings.TrimSpace(firstMatch(matrixRE, text)))
	validity := strings.ReplaceAll(strings.ReplaceAll(firstMatch(validityRE, text), " ", ""), "/", ".")
	c.Set(record.FieldValidity, validity)
	c.Set(record.FieldMandatoryCH, firstMatch(mandatoryCHRE, text))
	c.Set(record.FieldOptionalCH, firstMatch(optionalCHRE, text))

	code := strings.TrimRight(firstMatch(structureCodeRE, text), ".-/")
	if code == "" && courseCode != "" && validity != "" {
		code = courseCode + "-" + strings.ReplaceAll(validity, ".", "")
	}
	c.Set(record.FieldCode, code)

	period := 0
	seen := make(map[string]bool)
	doc.Find(periodSelector).Each(func(_ int, sel *goquery.Selection) {
		// Containers are visited along with their children; only leaves
		// contribute codes so nothing is counted twice.
		if sel.Find(periodSelector).Length() > 0 {
			return
		}
		line := extract.Flat(sel)
		if p, ok := periodOf(line); ok && len(extract.ComponentCodes(line)) == 0 {
			period = p
			return
		}
		key := strconv.Itoa(period)
		for _, cc := range extract.ComponentCodes(line) {
			if cc == courseCode || seen[cc] {
				continue
			}
			seen[cc] = true
			c.Periods[key] = append(c.Periods[key], cc)
		}
	})
	return c, code != "" && courseCode != ""
}

func periodOf(s string) (int, bool) {
	m := periodRE.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
