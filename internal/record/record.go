// Package record defines the scraped record variants, their kinds and the
// candidate type strategies emit before validation.
package record

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a data kind. It selects the extractor unit, the sink
// endpoint and the record variant.
type Kind string

const (
	KindCourses    Kind = "courses"
	KindSchedules  Kind = "schedules"
	KindProfessors Kind = "professors"
	KindSyllabi    Kind = "syllabi"
	KindComponents Kind = "components"
	KindStructures Kind = "structures"
)

// Kinds lists every known kind in pipeline-friendly order.
var Kinds = []Kind{KindCourses, KindSchedules, KindProfessors, KindSyllabi, KindComponents, KindStructures}

var kindAliases = map[string]Kind{
	"course":      KindCourses,
	"cursos":      KindCourses,
	"schedule":    KindSchedules,
	"horarios":    KindSchedules,
	"professor":   KindProfessors,
	"professores": KindProfessors,
	"syllabus":    KindSyllabi,
	"ementas":     KindSyllabi,
	"component":   KindComponents,
	"componentes": KindComponents,
	"structure":   KindStructures,
	"estruturas":  KindStructures,
}

// ParseKind resolves a kind name, accepting singular and Portuguese aliases.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Meta holds the attributes every variant shares.
type Meta struct {
	ScrapedAt        time.Time `json:"scrapedAt"`
	SourceURL        string    `json:"sourceUrl"`
	ExtractorVersion string    `json:"extractorVersion,omitempty"`
}

// Record is one validated scraped record.
type Record interface {
	Kind() Kind
	// Key returns the primary business key used for de-duplication and
	// repository lookups.
	Key() string
	Metadata() Meta
}

type Course struct {
	Meta
	Code          string   `json:"courseCode"`
	Name          string   `json:"courseName"`
	Credits       int      `json:"credits"`
	Workload      int      `json:"workload"`
	Department    string   `json:"department"`
	Semester      string   `json:"semester,omitempty"`
	Prerequisites []string `json:"prerequisites"`
	Description   string   `json:"description,omitempty"`
}

func (Course) Kind() Kind       { return KindCourses }
func (c Course) Key() string    { return c.Code }
func (c Course) Metadata() Meta { return c.Meta }

// ScheduleEntry is one class offering of a course.
type ScheduleEntry struct {
	Meta
	CourseCode       string `json:"courseCode"`
	ClassCode        string `json:"classCode"`
	Professor        string `json:"professor,omitempty"`
	ScheduleText     string `json:"scheduleText"`
	DaysOfWeek       []int  `json:"daysOfWeek"`
	StartTime        string `json:"startTime,omitempty"`
	EndTime          string `json:"endTime,omitempty"`
	Classroom        string `json:"classroom,omitempty"`
	MaxStudents      int    `json:"maxStudents,omitempty"`
	EnrolledStudents int    `json:"enrolledStudents,omitempty"`
	Semester         string `json:"semester,omitempty"`
}

func (ScheduleEntry) Kind() Kind       { return KindSchedules }
func (s ScheduleEntry) Key() string    { return s.CourseCode + "-" + s.ClassCode }
func (s ScheduleEntry) Metadata() Meta { return s.Meta }

type Professor struct {
	Meta
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	Department    string   `json:"department,omitempty"`
	Title         string   `json:"title,omitempty"`
	LattesURL     string   `json:"lattesUrl,omitempty"`
	CoursesTaught []string `json:"coursesTaught"`
}

func (Professor) Kind() Kind       { return KindProfessors }
func (p Professor) Key() string    { return p.Name }
func (p Professor) Metadata() Meta { return p.Meta }

// Syllabus is the structured content of one syllabus document.
type Syllabus struct {
	Meta
	CourseCode           string   `json:"courseCode"`
	CourseName           string   `json:"courseName,omitempty"`
	Semester             string   `json:"semester,omitempty"`
	Objectives           string   `json:"objectives,omitempty"`
	Content              string   `json:"syllabusContent,omitempty"`
	Methodology          string   `json:"methodology,omitempty"`
	Evaluation           string   `json:"evaluation,omitempty"`
	Bibliography         []string `json:"bibliography"`
	Competencies         []string `json:"competencies"`
	PDFURL               string   `json:"pdfUrl"`
	ExtractionConfidence float64  `json:"extractionConfidence"`
}

func (Syllabus) Kind() Kind       { return KindSyllabi }
func (s Syllabus) Key() string    { return s.CourseCode }
func (s Syllabus) Metadata() Meta { return s.Meta }

// Component is a curricular component offered within a degree course.
type Component struct {
	Meta
	Code          string   `json:"componentCode"`
	Name          string   `json:"componentName"`
	Workload      int      `json:"workload"`
	Nature        string   `json:"nature,omitempty"`
	Department    string   `json:"department,omitempty"`
	CourseCode    string   `json:"courseCode,omitempty"`
	Prerequisites []string `json:"prerequisites"`
	Corequisites  []string `json:"corequisites"`
}

func (Component) Kind() Kind       { return KindComponents }
func (c Component) Key() string    { return c.Code }
func (c Component) Metadata() Meta { return c.Meta }

// Structure is a curricular structure (matrix) of a degree course.
type Structure struct {
	Meta
	Code               string              `json:"structureCode"`
	CourseCode         string              `json:"courseCode"`
	Matrix             string              `json:"matrix,omitempty"`
	Validity           string              `json:"validity,omitempty"`
	MandatoryWorkload  int                 `json:"mandatoryWorkload,omitempty"`
	OptionalWorkload   int                 `json:"optionalWorkload,omitempty"`
	ComponentsByPeriod map[string][]string `json:"componentsByPeriod"`
}

func (Structure) Kind() Kind       { return KindStructures }
func (s Structure) Key() string    { return s.CourseCode + "/" + s.Code }
func (s Structure) Metadata() Meta { return s.Meta }

// GroupByKind splits a mixed record set by kind, preserving order within
// each kind.
func GroupByKind(records []Record) map[Kind][]Record {
	out := make(map[Kind][]Record)
	for _, r := range records {
		if r == nil {
			continue
		}
		out[r.Kind()] = append(out[r.Kind()], r)
	}
	return out
}
