// Package validate checks and cleans candidate fields and converts
// candidates into records.
package validate

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/goradar/internal/schedule"
)

// DefaultMaxLen bounds sanitised free-text fields.
const DefaultMaxLen = 500

// LattesPrefix is the required prefix of a Lattes CV URL.
const LattesPrefix = "http://lattes.cnpq.br/"

var (
	courseCodeRE    = regexp.MustCompile(`^[A-Z]{2,4}\d{3,4}[A-Z]?$`)
	componentCodeRE = regexp.MustCompile(`^[A-Z]{4,6}\d{2,3}$`)
	classCodeRE     = regexp.MustCompile(`^[TN]?\d{2}[A-Z]?$`)
	semesterRE      = regexp.MustCompile(`^20\d{2}[./][12]$`)
	emailRE         = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	professorNameRE = regexp.MustCompile(`^\p{Lu}[\p{L}\s.'-]+$`)
	clockRE         = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// CourseCode reports whether s is a course code such as MAT0154.
func CourseCode(s string) bool { return courseCodeRE.MatchString(s) }

// ComponentCode accepts curricular component codes (MATA37) and course codes.
func ComponentCode(s string) bool { return componentCodeRE.MatchString(s) || courseCodeRE.MatchString(s) }

func ClassCode(s string) bool { return classCodeRE.MatchString(s) }

// TimeSlot reports whether every space-separated part of s is a schedule code.
func TimeSlot(s string) bool {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !schedule.Valid(p) {
			return false
		}
	}
	return true
}

func Semester(s string) bool { return semesterRE.MatchString(s) }
func Email(s string) bool    { return emailRE.MatchString(s) }
func Clock(s string) bool    { return clockRE.MatchString(s) }

// ProfessorName requires a capitalised name of at least three characters.
func ProfessorName(s string) bool {
	return len([]rune(s)) >= 3 && professorNameRE.MatchString(s)
}

func LattesURL(s string) bool { return strings.HasPrefix(s, LattesPrefix) }

// Range checks.
func Credits(n int) bool     { return n >= 1 && n <= 20 }
func Workload(n int) bool    { return n >= 15 && n <= 300 }
func MaxStudents(n int) bool { return n >= 1 && n <= 500 }

// Sanitize NFC-normalises s, removes non-printable runes, collapses
// whitespace and truncates to maxLen runes. maxLen <= 0 means DefaultMaxLen.
func Sanitize(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	s = norm.NFC.String(s)
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if !unicode.IsPrint(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := []rune(b.String())
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return strings.TrimSpace(string(out))
}

// SanitizeBlock is Sanitize for multi-line section bodies: line breaks are
// kept, blank runs collapse to one empty line and there is no length cap.
func SanitizeBlock(s string) string {
	lines := strings.Split(norm.NFC.String(s), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = Sanitize(line, len(line)+1)
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
