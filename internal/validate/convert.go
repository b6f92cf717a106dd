package validate

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/schedule"
)

// Defaults filled in when a source omits a field.
const (
	DefaultDepartment   = "Não informado"
	DefaultProfessor    = "Não informado"
	DefaultCredits      = 4
	DefaultClassCode    = "T01"
	HoursPerCredit      = 15
	maxPeriodsPerMatrix = 20
)

// Validator turns candidates into records. The zero value is usable.
type Validator struct {
	// MaxLen bounds free-text fields; zero means DefaultMaxLen.
	MaxLen int
	// Version is stamped into every record's extractor version.
	Version string
	// Now stamps scrapedAt; defaults to time.Now.
	Now func() time.Time
}

// ConvertAll converts every candidate, returning the accepted records in
// input order and a report of skips by field.
func (v *Validator) ConvertAll(cands []record.Candidate) ([]record.Record, record.Report) {
	var out []record.Record
	var rep record.Report
	for _, c := range cands {
		o := v.Convert(c)
		rep.Add(o)
		if o.OK() {
			out = append(out, o.Record)
			continue
		}
		log.Debug().Str("kind", string(c.Kind)).Str("strategy", c.Strategy).Str("field", o.Field).Str("reason", o.Reason).Msg("candidate skipped")
	}
	return out, rep
}

// Convert validates and cleans one candidate.
func (v *Validator) Convert(c record.Candidate) record.Outcome {
	switch c.Kind {
	case record.KindCourses:
		return v.course(c)
	case record.KindSchedules:
		return v.scheduleEntry(c)
	case record.KindProfessors:
		return v.professor(c)
	case record.KindSyllabi:
		return v.syllabus(c)
	case record.KindComponents:
		return v.component(c)
	case record.KindStructures:
		return v.structure(c)
	}
	return record.Skip("kind", "unknown kind %q", c.Kind)
}

func (v *Validator) meta(c record.Candidate) record.Meta {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	return record.Meta{
		ScrapedAt:        now().UTC().Truncate(time.Second),
		SourceURL:        c.Source,
		ExtractorVersion: v.Version,
	}
}

func (v *Validator) text(c record.Candidate, field string) string {
	return Sanitize(c.Get(field), v.MaxLen)
}

func code(c record.Candidate, field string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(c.Get(field)), " ", ""))
}

// optionalInt parses a numeric field. Absent fields report ok with present
// false; malformed ones report !ok.
func optionalInt(c record.Candidate, field string) (n int, present, ok bool) {
	raw := strings.TrimSpace(c.Get(field))
	if raw == "" {
		return 0, false, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, false
	}
	return n, true, true
}

func (v *Validator) course(c record.Candidate) record.Outcome {
	cc := code(c, record.FieldCode)
	if !CourseCode(cc) {
		return record.Skip(record.FieldCode, "invalid course code %q", cc)
	}
	name := v.text(c, record.FieldName)
	if len([]rune(name)) < 3 || isDigits(name) {
		return record.Skip(record.FieldName, "invalid course name %q", name)
	}
	credits, present, ok := optionalInt(c, record.FieldCredits)
	switch {
	case !ok:
		return record.Skip(record.FieldCredits, "credits not a number: %q", c.Get(record.FieldCredits))
	case !present:
		credits = DefaultCredits
	case !Credits(credits):
		return record.Skip(record.FieldCredits, "credits out of range: %d", credits)
	}
	workload, present, ok := optionalInt(c, record.FieldWorkload)
	switch {
	case !ok:
		return record.Skip(record.FieldWorkload, "workload not a number: %q", c.Get(record.FieldWorkload))
	case !present:
		workload = credits * HoursPerCredit
	case !Workload(workload):
		return record.Skip(record.FieldWorkload, "workload out of range: %d", workload)
	}
	dept := v.text(c, record.FieldDepartment)
	if len([]rune(dept)) < 2 {
		dept = DefaultDepartment
	}
	return record.Accept(record.Course{
		Meta:          v.meta(c),
		Code:          cc,
		Name:          name,
		Credits:       credits,
		Workload:      workload,
		Department:    dept,
		Semester:      semester(c),
		Prerequisites: codes(c.Lists[record.ListPrerequisites], cc, CourseCode),
		Description:   v.text(c, record.FieldDescription),
	})
}

func (v *Validator) scheduleEntry(c record.Candidate) record.Outcome {
	cc := code(c, record.FieldCourseCode)
	if !CourseCode(cc) && !ComponentCode(cc) {
		return record.Skip(record.FieldCourseCode, "invalid course code %q", cc)
	}
	class := code(c, record.FieldClassCode)
	if class == "" {
		class = DefaultClassCode
	}
	if !ClassCode(class) {
		return record.Skip(record.FieldClassCode, "invalid class code %q", class)
	}
	e := record.ScheduleEntry{
		Meta:       v.meta(c),
		CourseCode: cc,
		ClassCode:  class,
		Professor:  v.text(c, record.FieldProfessor),
		Classroom:  v.text(c, record.FieldClassroom),
		Semester:   semester(c),
	}
	if e.Professor != "" && !ProfessorName(e.Professor) {
		return record.Skip(record.FieldProfessor, "invalid professor name %q", e.Professor)
	}
	if e.Professor == "" {
		e.Professor = DefaultProfessor
	}
	if text := strings.TrimSpace(c.Get(record.FieldSchedule)); text != "" {
		if !TimeSlot(text) {
			return record.Skip(record.FieldSchedule, "invalid schedule code %q", text)
		}
		d := schedule.Decode(text)
		e.ScheduleText = text
		e.DaysOfWeek = d.Days
		if d.HasTime {
			e.StartTime, e.EndTime = d.Start.String(), d.End.String()
		}
	}
	if len(e.DaysOfWeek) == 0 {
		day, err := strconv.Atoi(c.Get(record.FieldDays))
		if err != nil || day < 1 || day > 7 {
			return record.Skip(record.FieldSchedule, "no schedule code or weekday")
		}
		e.DaysOfWeek = []int{day}
		e.ScheduleText = schedule.DayName(day)
	}
	if e.StartTime == "" {
		start, end := c.Get(record.FieldTimeStart), c.Get(record.FieldTimeEnd)
		if Clock(start) && Clock(end) && start <= end {
			e.StartTime, e.EndTime = start, end
		}
	}
	capacity, hasCap, ok := optionalInt(c, record.FieldMaxStudents)
	if !ok || hasCap && !MaxStudents(capacity) {
		return record.Skip(record.FieldMaxStudents, "max students out of range: %q", c.Get(record.FieldMaxStudents))
	}
	enrolled, hasEnrolled, ok := optionalInt(c, record.FieldEnrolled)
	if !ok || enrolled < 0 || hasCap && hasEnrolled && enrolled > capacity {
		return record.Skip(record.FieldEnrolled, "enrolled %q exceeds capacity %d", c.Get(record.FieldEnrolled), capacity)
	}
	e.MaxStudents, e.EnrolledStudents = capacity, enrolled
	return record.Accept(e)
}

func (v *Validator) professor(c record.Candidate) record.Outcome {
	name := v.text(c, record.FieldName)
	if !ProfessorName(name) {
		return record.Skip(record.FieldName, "invalid professor name %q", name)
	}
	p := record.Professor{
		Meta:          v.meta(c),
		Name:          name,
		Email:         strings.ToLower(strings.TrimSpace(c.Get(record.FieldEmail))),
		Department:    v.text(c, record.FieldDepartment),
		Title:         v.text(c, record.FieldTitle),
		LattesURL:     strings.TrimSpace(c.Get(record.FieldLattes)),
		CoursesTaught: codes(c.Lists[record.ListCourses], "", ComponentCode),
	}
	if p.Email != "" && !Email(p.Email) {
		return record.Skip(record.FieldEmail, "invalid email %q", p.Email)
	}
	if strings.HasPrefix(p.LattesURL, "https://lattes.cnpq.br/") {
		p.LattesURL = LattesPrefix + strings.TrimPrefix(p.LattesURL, "https://lattes.cnpq.br/")
	}
	if p.LattesURL != "" && !LattesURL(p.LattesURL) {
		return record.Skip(record.FieldLattes, "invalid lattes url %q", p.LattesURL)
	}
	if p.Department == "" {
		p.Department = DefaultDepartment
	}
	return record.Accept(p)
}

func (v *Validator) syllabus(c record.Candidate) record.Outcome {
	cc := code(c, record.FieldCourseCode)
	if !CourseCode(cc) && !ComponentCode(cc) {
		return record.Skip(record.FieldCourseCode, "invalid course code %q", cc)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return record.Skip("confidence", "confidence out of range: %v", c.Confidence)
	}
	section := func(f string) string { return SanitizeBlock(c.Get(f)) }
	return record.Accept(record.Syllabus{
		Meta:                 v.meta(c),
		CourseCode:           cc,
		CourseName:           v.text(c, record.FieldName),
		Semester:             semester(c),
		Objectives:           section(record.FieldObjectives),
		Content:              section(record.FieldContent),
		Methodology:          section(record.FieldMethodology),
		Evaluation:           section(record.FieldEvaluation),
		Bibliography:         v.list(c.Lists[record.ListBibliography]),
		Competencies:         v.list(c.Lists[record.ListCompetencies]),
		PDFURL:               strings.TrimSpace(c.Get(record.FieldDocumentURL)),
		ExtractionConfidence: c.Confidence,
	})
}

func (v *Validator) component(c record.Candidate) record.Outcome {
	cc := code(c, record.FieldCode)
	if !ComponentCode(cc) {
		return record.Skip(record.FieldCode, "invalid component code %q", cc)
	}
	name := v.text(c, record.FieldName)
	if len([]rune(name)) < 3 || isDigits(name) {
		return record.Skip(record.FieldName, "invalid component name %q", name)
	}
	workload, present, ok := optionalInt(c, record.FieldWorkload)
	if !ok || present && (workload < 0 || workload > 300) {
		return record.Skip(record.FieldWorkload, "workload out of range: %q", c.Get(record.FieldWorkload))
	}
	dept := v.text(c, record.FieldDepartment)
	if dept == "" {
		dept = DefaultDepartment
	}
	return record.Accept(record.Component{
		Meta:          v.meta(c),
		Code:          cc,
		Name:          name,
		Workload:      workload,
		Nature:        v.text(c, record.FieldNature),
		Department:    dept,
		CourseCode:    code(c, record.FieldCourseCode),
		Prerequisites: codes(c.Lists[record.ListPrerequisites], cc, ComponentCode),
		Corequisites:  codes(c.Lists[record.ListCorequisites], cc, ComponentCode),
	})
}

func (v *Validator) structure(c record.Candidate) record.Outcome {
	sc := code(c, record.FieldCode)
	if sc == "" {
		return record.Skip(record.FieldCode, "missing structure code")
	}
	course := code(c, record.FieldCourseCode)
	if course == "" {
		return record.Skip(record.FieldCourseCode, "missing course code")
	}
	s := record.Structure{
		Meta:               v.meta(c),
		Code:               sc,
		CourseCode:         course,
		Matrix:             v.text(c, record.FieldMatrix),
		Validity:           v.text(c, record.FieldValidity),
		ComponentsByPeriod: map[string][]string{},
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{{record.FieldMandatoryCH, &s.MandatoryWorkload}, {record.FieldOptionalCH, &s.OptionalWorkload}} {
		n, _, ok := optionalInt(c, f.name)
		if !ok || n < 0 {
			return record.Skip(f.name, "workload must be a non-negative number: %q", c.Get(f.name))
		}
		*f.dst = n
	}
	for period, list := range c.Periods {
		p, err := strconv.Atoi(strings.TrimSpace(period))
		if err != nil || p < 0 || p > maxPeriodsPerMatrix {
			return record.Skip("period", "invalid period %q", period)
		}
		if kept := codes(list, "", ComponentCode); len(kept) > 0 {
			s.ComponentsByPeriod[strconv.Itoa(p)] = kept
		}
	}
	return record.Accept(s)
}

// Summary aggregates validation across reports.
type Summary struct {
	Total       int            `json:"total"`
	Valid       int            `json:"valid"`
	Invalid     int            `json:"invalid"`
	SuccessRate float64        `json:"successRate"`
	ErrorFields map[string]int `json:"errorFields,omitempty"`
	TopFields   []string       `json:"topFields,omitempty"`
}

// Summarize folds reports into one summary.
func Summarize(reports ...record.Report) Summary {
	var all record.Report
	for _, r := range reports {
		all.Merge(r)
	}
	top := all.TopReasons()
	if len(top) > 5 {
		top = top[:5]
	}
	return Summary{
		Total:       all.Total(),
		Valid:       all.Accepted,
		Invalid:     all.Skipped,
		SuccessRate: all.SuccessRate(),
		ErrorFields: all.Reasons,
		TopFields:   top,
	}
}

func (v *Validator) list(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := Sanitize(it, v.MaxLen); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// codes upper-cases, de-duplicates and filters a code list, dropping self.
func codes(list []string, self string, valid func(string) bool) []string {
	out := make([]string, 0, len(list))
	seen := map[string]bool{self: true}
	for _, raw := range list {
		c := strings.ToUpper(strings.TrimSpace(raw))
		if seen[c] || !valid(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// semester normalises "2024/1" and "2024.1" to the dotted form; anything
// else is dropped.
func semester(c record.Candidate) string {
	s := strings.TrimSpace(c.Get(record.FieldSemester))
	if !Semester(s) {
		return ""
	}
	return strings.Replace(s, "/", ".", 1)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
