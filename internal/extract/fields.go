package extract

import (
	"regexp"
	"strings"

	"github.com/hyperifyio/goradar/internal/schedule"
)

// Pattern families used for free-text field extraction. Where a field has
// several, they are tried in the order listed.
var (
	CourseCodeRE  = regexp.MustCompile(`\b([A-Z]{2,4}\d{3,4}[A-Z]?)\b`)
	creditsRE     = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:créditos?|creditos?|cred\b|cr\b)`)
	workloadRE    = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:h\b|hs\b|horas\b|h/a\b|ch\b)`)
	workloadTagRE = regexp.MustCompile(`(?i)\b(?:ch|carga\s+hor[áa]ria)\s*:?\s*(\d{2,3})\b`)
	classTokenRE  = regexp.MustCompile(`\b([TN]\d{2}[A-Z]?)\b`)
	classLabelRE  = regexp.MustCompile(`(?i)\b(?:turma|class|t\.)\s*:?\s*([TN]?\d{2}[A-Z]?)\b`)
	professorRE   = regexp.MustCompile(`(?i:\bprof(?:\.|essora?\b)|\bdocente\b)\s*:?\s*((?:Dr\.?a?\s+)?\p{Lu}[\p{Ll}']+(?:\s+(?:d[aeo]s?\s+|e\s+)?\p{Lu}[\p{Ll}']+)*)`)
	scheduleRE    = regexp.MustCompile(`([1-7]+[MTN]\d{2,4}(?:[\s,;-]*[1-7]+[MTN]\d{2,4})*)`)
	classroomRE   = regexp.MustCompile(`(?i)\b(?:sala|room|s\.)\s*:?\s*([A-Z]{0,4}-?\d+[A-Z]?)\b`)
	vacanciesRE   = regexp.MustCompile(`\b(\d{1,3})\s*/\s*(\d{1,3})\b`)
	departmentRE  = regexp.MustCompile(`(?i:\b(?:departamento|depto\.?|dept\.?))\s*(?:de\s+)?:?\s*([^\n,;|()]{3,80})`)
	emailRE       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	lattesRE      = regexp.MustCompile(`https?://lattes\.cnpq\.br/\d+`)
	semesterRE    = regexp.MustCompile(`\b(20\d{2})\s*[./-]\s*([12])\b`)
	timeRangeRE   = regexp.MustCompile(`\b(\d{1,2})[:h](\d{2})\s*(?:-|–|às|as|a)\s*(\d{1,2})[:h](\d{2})\b`)
	prereqRE      = regexp.MustCompile(`(?i)pr[ée]-?requisitos?\s*:?\s*([^\n]*)`)
	coreqRE       = regexp.MustCompile(`(?i)co-?requisitos?\s*:?\s*([^\n]*)`)
	titleRE       = regexp.MustCompile(`(?i)\b(doutora?|dr\.?a?|mestre|msc\.?|especialista|p[óo]s-?doutor)\b`)
	natureRE      = regexp.MustCompile(`(?i)\b(obrigat[óo]ri[oa]|optativ[oa]|eletiv[oa]|complementar)\b`)
	longNumberRE  = regexp.MustCompile(`\d{3,4}`)
	nameSplitRE   = regexp.MustCompile(`[|\n•·–—:;()\[\]]+|\s-\s`)
)

// ComponentCodeRE also accepts curricular component codes such as MATA37.
var ComponentCodeRE = regexp.MustCompile(`\b([A-Z]{4,6}\d{2,3}|[A-Z]{2,4}\d{3,4}[A-Z]?)\b`)

// CourseCode returns the first course code in s.
func CourseCode(s string) string { return firstGroup(CourseCodeRE, s) }

// ComponentCode returns the first component or course code in s.
func ComponentCode(s string) string { return firstGroup(ComponentCodeRE, s) }

// CourseCodes returns every distinct course code in s in order of appearance.
func CourseCodes(s string) []string { return codesIn(CourseCodeRE, s) }

// ComponentCodes is CourseCodes for component codes.
func ComponentCodes(s string) []string { return codesIn(ComponentCodeRE, s) }

func codesIn(re *regexp.Regexp, s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func Credits(s string) string { return firstGroup(creditsRE, s) }

// Workload prefers an explicit "CH: 68" tag over a bare "68h".
func Workload(s string) string {
	if v := firstGroup(workloadTagRE, s); v != "" {
		return v
	}
	return firstGroup(workloadRE, s)
}

// ClassCode prefers a bare T01/N02 token over a labelled "turma 01".
func ClassCode(s string) string {
	if v := firstGroup(classTokenRE, CourseCodeRE.ReplaceAllString(s, " ")); v != "" {
		return v
	}
	return strings.ToUpper(firstGroup(classLabelRE, CourseCodeRE.ReplaceAllString(s, " ")))
}

func Professor(s string) string { return strings.TrimSpace(firstGroup(professorRE, s)) }

// ScheduleCode returns the first run of schedule codes, normalised to
// space-separated codes.
func ScheduleCode(s string) string {
	run := firstGroup(scheduleRE, s)
	if run == "" {
		return ""
	}
	return strings.Join(schedule.CodeRE.FindAllString(run, -1), " ")
}

func Classroom(s string) string { return firstGroup(classroomRE, s) }

// Vacancies returns enrolled and max from an "enrolled/max" pair.
func Vacancies(s string) (enrolled, capacity string) {
	m := vacanciesRE.FindStringSubmatch(s)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

func Department(s string) string { return strings.TrimSpace(firstGroup(departmentRE, s)) }
func Email(s string) string      { return emailRE.FindString(s) }
func Lattes(s string) string     { return lattesRE.FindString(s) }

// Semester returns "YYYY.N" for the first semester mention.
func Semester(s string) string {
	m := semesterRE.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + "." + m[2]
}

// TimeRange returns "HH:MM" start and end for the first explicit range.
func TimeRange(s string) (start, end string) {
	m := timeRangeRE.FindStringSubmatch(s)
	if m == nil {
		return "", ""
	}
	return pad2(m[1]) + ":" + m[2], pad2(m[3]) + ":" + m[4]
}

// Prerequisites returns the course codes listed after a prerequisite label,
// excluding self.
func Prerequisites(s, self string) []string { return labelledCodes(prereqRE, s, self) }

func Corequisites(s, self string) []string { return labelledCodes(coreqRE, s, self) }

func Title(s string) string { return firstGroup(titleRE, s) }

// Nature returns the component nature (mandatory, optional...) in upper case.
func Nature(s string) string { return strings.ToUpper(Fold(firstGroup(natureRE, s))) }

// GuessName picks the longest 3-10 word segment of s that carries no
// 3-4 digit number and no course or component code. Shorter segments are used only when
// no such segment exists.
func GuessName(s string) string {
	var best, fallback string
	for _, seg := range nameSplitRE.Split(s, -1) {
		seg = strings.TrimSpace(ComponentCodeRE.ReplaceAllString(seg, " "))
		seg = collapseSpaces(strings.Trim(seg, " -,."))
		if seg == "" || longNumberRE.MatchString(seg) || creditsRE.MatchString(seg) || scheduleRE.MatchString(seg) {
			continue
		}
		if !hasLetters(seg) {
			continue
		}
		n := len(strings.Fields(seg))
		switch {
		case n >= 3 && n <= 10:
			if len(seg) > len(best) {
				best = seg
			}
		case n > 0 && n < 3:
			if len(seg) > len(fallback) {
				fallback = seg
			}
		}
	}
	if best != "" {
		return best
	}
	return fallback
}

func labelledCodes(re *regexp.Regexp, s, self string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		for _, code := range ComponentCodes(m[1]) {
			if code != self && !contains(out, code) {
				out = append(out, code)
			}
		}
	}
	return out
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func hasLetters(s string) bool {
	letters := 0
	for _, r := range s {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r > 0x7f {
			letters++
		}
	}
	return letters >= 3
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
