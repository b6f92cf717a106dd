package document

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/validate"
)

// Section names a semantic part of a syllabus.
type Section string

const (
	Objectives   Section = "objectives"
	Content      Section = "content"
	Methodology  Section = "methodology"
	Evaluation   Section = "evaluation"
	Bibliography Section = "bibliography"
	Competencies Section = "competencies"
)

// AllSections lists sections in scoring order.
var AllSections = []Section{Objectives, Content, Methodology, Evaluation, Bibliography, Competencies}

const (
	minSectionLen   = 10
	maxBibliography = 20
	maxCompetencies = 10
	minCompetency   = 15
	maxCompetency   = 200
	minBibLine      = 20
)

// headings holds the heading patterns of each section, tried in order. They
// match accent-folded, lowercased lines.
var headings = map[Section][]*regexp.Regexp{
	Objectives: {
		heading(`objetivos?(?:\s+gerais?|\s+especificos?)?|objectives?`),
		heading(`metas?|finalidades?`),
	},
	Content: {
		heading(`conteudo programatico|conteudos?|ementa|programa(?:\s+da disciplina)?|contents?|syllabus`),
		heading(`unidades?(?:\s+tematicas?)?|topicos?|chapters?`),
	},
	Methodology: {
		heading(`metodologia(?:\s+de ensino)?|metodos?|methodology|approach|estrategias?(?:\s+de ensino)?`),
		heading(`recursos didaticos|material didatico`),
	},
	Evaluation: {
		heading(`avaliacao(?:\s+da aprendizagem)?|criterios? de avaliacao|evaluation|assessment`),
		heading(`formas? de avaliacao|sistema de avaliacao|criterios?`),
	},
	Bibliography: {
		heading(`bibliografias?(?:\s+basicas?|\s+complementar(?:es)?)?|referencias?(?:\s+bibliograficas?)?|references?`),
		heading(`livros? textos?|material bibliografico`),
	},
	Competencies: {
		heading(`competencias?(?:\s+e\s+habilidades)?|habilidades?|skills?`),
		heading(`ao final d[aeo]\s.*|apos\s.*curso.*|students?\s.*able to`),
	},
}

func heading(alt string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*(?:\d+(?:\.\d+)*[.)-]?\s*)?(?:` + alt + `)\b\s*[:.\-–]?\s*`)
}

var (
	// An all-caps short line also ends a section, e.g. "CARGA HORÁRIA".
	capsHeadingRE   = regexp.MustCompile(`^(?:\d+(?:\.\d+)*[.)]\s+)?[\p{Lu}][\p{Lu}\s]{3,60}:?$`)
	numberedRefRE   = regexp.MustCompile(`(?m)^\s*\[?\d{1,2}[.)\]]\s+`)
	blankLineRE     = regexp.MustCompile(`\n\s*\n`)
	competencySepRE = regexp.MustCompile(`[;\n]\s*[-•*]?\s*`)
)

// Sections is the section map of one document.
type Sections struct {
	Objectives   string
	Content      string
	Methodology  string
	Evaluation   string
	Bibliography []string
	Competencies []string
}

// Has reports whether section s was found.
func (s Sections) Has(sec Section) bool {
	switch sec {
	case Objectives:
		return s.Objectives != ""
	case Content:
		return s.Content != ""
	case Methodology:
		return s.Methodology != ""
	case Evaluation:
		return s.Evaluation != ""
	case Bibliography:
		return len(s.Bibliography) > 0
	case Competencies:
		return len(s.Competencies) > 0
	}
	return false
}

// Found lists the sections present, in scoring order.
func (s Sections) Found() []Section {
	var out []Section
	for _, sec := range AllSections {
		if s.Has(sec) {
			out = append(out, sec)
		}
	}
	return out
}

// line is one line of text with its folded form. Both have the same rune
// count so a match offset in folded maps back to orig.
type line struct {
	orig   []rune
	folded string
}

func splitLines(text string) []line {
	raw := strings.Split(text, "\n")
	out := make([]line, len(raw))
	for i, l := range raw {
		out[i] = line{orig: []rune(l), folded: foldRunes(l)}
	}
	return out
}

// foldRunes folds each rune independently, keeping runes whose fold is not
// a single rune, so the result is rune-aligned with s.
func foldRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		f := extract.Fold(string(r))
		if utf8.RuneCountInString(f) == 1 {
			b.WriteString(f)
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Segment splits cleaned text into sections. For each section the first
// heading pattern that yields more than a few characters of body wins. A
// body runs from the heading to the next heading of any section.
func Segment(text string) Sections {
	lines := splitLines(text)
	bodies := make(map[Section]string, len(AllSections))
	for _, sec := range AllSections {
		bodies[sec] = sectionBody(lines, headings[sec])
	}
	return Sections{
		Objectives:   bodies[Objectives],
		Content:      bodies[Content],
		Methodology:  bodies[Methodology],
		Evaluation:   bodies[Evaluation],
		Bibliography: SplitBibliography(bodies[Bibliography]),
		Competencies: SplitCompetencies(bodies[Competencies]),
	}
}

func sectionBody(lines []line, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		for i, l := range lines {
			loc := re.FindStringIndex(l.folded)
			if loc == nil {
				continue
			}
			start := utf8.RuneCountInString(l.folded[:loc[1]])
			var b strings.Builder
			b.WriteString(string(l.orig[start:]))
			for _, next := range lines[i+1:] {
				if isHeading(next) {
					break
				}
				b.WriteString("\n")
				b.WriteString(string(next.orig))
			}
			body := validate.SanitizeBlock(b.String())
			if utf8.RuneCountInString(body) > minSectionLen {
				return body
			}
		}
	}
	return ""
}

func isHeading(l line) bool {
	for _, patterns := range headings {
		for _, re := range patterns {
			if re.MatchString(l.folded) {
				return true
			}
		}
	}
	return capsHeadingRE.MatchString(strings.TrimSpace(string(l.orig)))
}

// SplitBibliography splits a bibliography body into references: numbered
// markers first, then blank-line separated blocks, then long lines.
func SplitBibliography(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var refs []string
	if markers := numberedRefRE.FindAllStringIndex(body, -1); len(markers) > 1 {
		for _, part := range numberedRefRE.Split(body, -1) {
			if p := joinLines(part); p != "" {
				refs = append(refs, p)
			}
		}
	} else if blocks := blankLineRE.Split(body, -1); len(blocks) > 1 {
		for _, part := range blocks {
			if p := joinLines(part); p != "" {
				refs = append(refs, p)
			}
		}
	} else {
		for _, part := range strings.Split(body, "\n") {
			if p := strings.TrimSpace(part); utf8.RuneCountInString(p) > minBibLine {
				refs = append(refs, p)
			}
		}
	}
	if len(refs) > maxBibliography {
		refs = refs[:maxBibliography]
	}
	return refs
}

// SplitCompetencies splits a competencies body on semicolons and bullets,
// keeping items of reasonable length.
func SplitCompetencies(body string) []string {
	var out []string
	for _, part := range competencySepRE.Split(body, -1) {
		p := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(part), "-•*"))
		n := utf8.RuneCountInString(p)
		if n > minCompetency && n < maxCompetency {
			out = append(out, p)
		}
		if len(out) == maxCompetencies {
			break
		}
	}
	return out
}

func joinLines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
