package extract

import (
	"strings"

	"github.com/hyperifyio/goradar/internal/record"
)

// Profile maps structural units (table rows, list items, cards, events) to
// candidates of one record kind.
type Profile interface {
	Kind() record.Kind
	// FromCells builds a candidate from one table row. header holds the
	// folded header texts when the table has a header row.
	FromCells(cells, header []string) (record.Candidate, bool)
	// FromText builds a candidate from the flattened text of one unit.
	FromText(text string) (record.Candidate, bool)
	// Plausible filters elements during the generic fallback.
	Plausible(text string) bool
}

// ProfileFor returns the default profile for kinds extracted from listing
// pages. Syllabi and structures are not page-shaped and have none.
func ProfileFor(kind record.Kind) (Profile, bool) {
	switch kind {
	case record.KindCourses, record.KindComponents:
		return CourseProfile{RecordKind: kind}, true
	case record.KindSchedules:
		return ScheduleProfile{}, true
	case record.KindProfessors:
		return ProfessorProfile{}, true
	}
	return nil, false
}

// column finds the first header whose folded text contains one of keys.
func column(header []string, keys ...string) int {
	for i, h := range header {
		for _, k := range keys {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}

func exactColumn(header []string, keys ...string) int {
	for i, h := range header {
		for _, k := range keys {
			if h == k {
				return i
			}
		}
	}
	return -1
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// CourseProfile extracts course-like records: courses and curriculum
// components share code, name, credits and workload.
type CourseProfile struct {
	RecordKind record.Kind
}

func (p CourseProfile) Kind() record.Kind {
	if p.RecordKind == "" {
		return record.KindCourses
	}
	return p.RecordKind
}

func (p CourseProfile) code(s string) string {
	if p.Kind() == record.KindComponents {
		return ComponentCode(s)
	}
	return CourseCode(s)
}

func (p CourseProfile) FromCells(cells, header []string) (record.Candidate, bool) {
	c := record.NewCandidate(p.Kind(), "table", "")
	codeCol, nameCol, credCol, chCol := 0, 1, 2, -1
	deptCol, preCol, natCol := -1, -1, -1
	if len(header) > 0 {
		if i := column(header, "codigo", "code", "cod."); i >= 0 {
			codeCol = i
		}
		if i := column(header, "nome", "disciplina", "componente", "name", "titulo"); i >= 0 && i != codeCol {
			nameCol = i
		}
		if credCol = column(header, "credito", "cred"); credCol < 0 {
			credCol = exactColumn(header, "cr")
		}
		if chCol = column(header, "carga", "horas", "workload"); chCol < 0 {
			chCol = exactColumn(header, "ch", "c.h.")
		}
		deptCol = column(header, "depart", "unidade")
		preCol = column(header, "pre-req", "prerequisito", "pre req")
		natCol = column(header, "natureza", "tipo", "nature")
	}
	raw := cell(cells, codeCol)
	code := p.code(raw)
	if code == "" {
		code = raw
	}
	name := cell(cells, nameCol)
	if code == "" || name == "" {
		return c, false
	}
	c.Set(record.FieldCode, code)
	c.Set(record.FieldName, name)
	if v := cell(cells, credCol); v != "" {
		if n := Credits(v + " cr"); n != "" {
			c.Set(record.FieldCredits, n)
		}
	}
	if v := cell(cells, chCol); v != "" {
		if n := Workload(v + "h"); n != "" {
			c.Set(record.FieldWorkload, n)
		}
	}
	c.Set(record.FieldDepartment, cell(cells, deptCol))
	c.Set(record.FieldNature, Nature(cell(cells, natCol)))
	if v := cell(cells, preCol); v != "" {
		c.Lists[record.ListPrerequisites] = ComponentCodes(v)
	}
	if _, ok := c.Fields[record.FieldWorkload]; !ok {
		c.Set(record.FieldWorkload, Workload(strings.Join(cells, " ")))
	}
	return c, true
}

func (p CourseProfile) FromText(text string) (record.Candidate, bool) {
	c := record.NewCandidate(p.Kind(), "text", "")
	code := p.code(text)
	if code == "" {
		return c, false
	}
	name := GuessName(text)
	if name == "" {
		return c, false
	}
	c.Set(record.FieldCode, code)
	c.Set(record.FieldName, name)
	c.Set(record.FieldCredits, Credits(text))
	c.Set(record.FieldWorkload, Workload(text))
	c.Set(record.FieldDepartment, Department(text))
	c.Set(record.FieldSemester, Semester(text))
	c.Set(record.FieldNature, Nature(text))
	if pre := Prerequisites(text, code); len(pre) > 0 {
		c.Lists[record.ListPrerequisites] = pre
	}
	if co := Corequisites(text, code); len(co) > 0 {
		c.Lists[record.ListCorequisites] = co
	}
	return c, true
}

func (p CourseProfile) Plausible(text string) bool {
	return len(text) >= 10 && p.code(text) != ""
}

// ScheduleProfile extracts class offerings.
type ScheduleProfile struct{}

func (ScheduleProfile) Kind() record.Kind { return record.KindSchedules }

func (p ScheduleProfile) FromCells(cells, header []string) (record.Candidate, bool) {
	if len(header) == 0 {
		return p.FromText(strings.Join(cells, " | "))
	}
	c := record.NewCandidate(record.KindSchedules, "table", "")
	joined := strings.Join(cells, " | ")
	code := CourseCode(cell(cells, column(header, "codigo", "disciplina", "componente", "code")))
	if code == "" {
		code = CourseCode(joined)
	}
	if code == "" {
		return c, false
	}
	c.Set(record.FieldCourseCode, code)
	class := cell(cells, column(header, "turma", "class"))
	if class == "" {
		class = ClassCode(joined)
	}
	c.Set(record.FieldClassCode, strings.ToUpper(class))
	prof := cell(cells, column(header, "docente", "professor"))
	if prof == "" {
		prof = Professor(joined)
	}
	c.Set(record.FieldProfessor, prof)
	sched := ScheduleCode(cell(cells, column(header, "horario", "schedule")))
	if sched == "" {
		sched = ScheduleCode(joined)
	}
	c.Set(record.FieldSchedule, sched)
	room := cell(cells, column(header, "local", "sala", "room"))
	if room == "" {
		room = Classroom(joined)
	}
	c.Set(record.FieldClassroom, room)
	enrolled, capacity := Vacancies(cell(cells, column(header, "vagas", "ocupa", "matric")))
	c.Set(record.FieldEnrolled, enrolled)
	c.Set(record.FieldMaxStudents, capacity)
	c.Set(record.FieldSemester, Semester(joined))
	return c, true
}

func (ScheduleProfile) FromText(text string) (record.Candidate, bool) {
	c := record.NewCandidate(record.KindSchedules, "text", "")
	code := CourseCode(text)
	sched := ScheduleCode(text)
	if code == "" || sched == "" {
		return c, false
	}
	c.Set(record.FieldCourseCode, code)
	c.Set(record.FieldSchedule, sched)
	c.Set(record.FieldClassCode, ClassCode(text))
	c.Set(record.FieldProfessor, Professor(text))
	c.Set(record.FieldClassroom, Classroom(text))
	enrolled, capacity := Vacancies(text)
	c.Set(record.FieldEnrolled, enrolled)
	c.Set(record.FieldMaxStudents, capacity)
	c.Set(record.FieldSemester, Semester(text))
	start, end := TimeRange(text)
	c.Set(record.FieldTimeStart, start)
	c.Set(record.FieldTimeEnd, end)
	return c, true
}

func (ScheduleProfile) Plausible(text string) bool {
	return len(text) >= 15 && scheduleRE.MatchString(text)
}

// ProfessorProfile extracts faculty entries.
type ProfessorProfile struct{}

func (ProfessorProfile) Kind() record.Kind { return record.KindProfessors }

func (p ProfessorProfile) FromCells(cells, header []string) (record.Candidate, bool) {
	c := record.NewCandidate(record.KindProfessors, "table", "")
	joined := strings.Join(cells, " | ")
	nameCol := 0
	if len(header) > 0 {
		if i := column(header, "nome", "docente", "professor", "name"); i >= 0 {
			nameCol = i
		}
	}
	name := cell(cells, nameCol)
	if name == "" || Email(name) != "" {
		return c, false
	}
	c.Set(record.FieldName, name)
	c.Set(record.FieldEmail, Email(joined))
	c.Set(record.FieldLattes, Lattes(joined))
	if i := column(header, "titul", "title", "formacao"); i >= 0 {
		c.Set(record.FieldTitle, cell(cells, i))
	} else {
		c.Set(record.FieldTitle, Title(joined))
	}
	if i := column(header, "depart", "unidade", "setor"); i >= 0 {
		c.Set(record.FieldDepartment, cell(cells, i))
	} else {
		c.Set(record.FieldDepartment, Department(joined))
	}
	c.Lists[record.ListCourses] = CourseCodes(joined)
	return c, true
}

func (ProfessorProfile) FromText(text string) (record.Candidate, bool) {
	c := record.NewCandidate(record.KindProfessors, "text", "")
	name := Professor(text)
	if name == "" {
		name = GuessName(emailRE.ReplaceAllString(lattesRE.ReplaceAllString(text, " "), " "))
	}
	if name == "" {
		return c, false
	}
	c.Set(record.FieldName, name)
	c.Set(record.FieldEmail, Email(text))
	c.Set(record.FieldLattes, Lattes(text))
	c.Set(record.FieldTitle, Title(text))
	c.Set(record.FieldDepartment, Department(text))
	if codes := CourseCodes(text); len(codes) > 0 {
		c.Lists[record.ListCourses] = codes
	}
	return c, true
}

func (ProfessorProfile) Plausible(text string) bool {
	return len(text) >= 10 && (emailRE.MatchString(text) || lattesRE.MatchString(text) || professorRE.MatchString(text))
}
