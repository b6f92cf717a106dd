package record

import (
	"fmt"
	"sort"
)

// Field names carried by candidates. Strategies fill whichever they can
// find; validation decides what is required per kind.
const (
	FieldCode        = "code"
	FieldName        = "name"
	FieldCredits     = "credits"
	FieldWorkload    = "workload"
	FieldDepartment  = "department"
	FieldSemester    = "semester"
	FieldDescription = "description"
	FieldClassCode   = "class_code"
	FieldProfessor   = "professor"
	FieldSchedule    = "schedule"
	FieldClassroom   = "classroom"
	FieldMaxStudents = "max_students"
	FieldEnrolled    = "enrolled"
	FieldEmail       = "email"
	FieldTitle       = "title"
	FieldLattes      = "lattes"
	FieldCourseCode  = "course_code"
	FieldNature      = "nature"
	FieldMatrix      = "matrix"
	FieldValidity    = "validity"
	FieldObjectives  = "objectives"
	FieldContent     = "content"
	FieldMethodology = "methodology"
	FieldEvaluation  = "evaluation"
	FieldDocumentURL = "document_url"
	FieldMandatoryCH = "mandatory_workload"
	FieldOptionalCH  = "optional_workload"
	FieldDays        = "days"
	FieldTimeStart   = "start_time"
	FieldTimeEnd     = "end_time"
)

// List names carried by candidates.
const (
	ListPrerequisites = "prerequisites"
	ListCorequisites  = "corequisites"
	ListBibliography  = "bibliography"
	ListCompetencies  = "competencies"
	ListCourses       = "courses"
)

// Candidate is an unvalidated record produced by a strategy. Fields hold the
// raw strings as found; Strategy records provenance.
type Candidate struct {
	Kind       Kind
	Fields     map[string]string
	Lists      map[string][]string
	Periods    map[string][]string
	Strategy   string
	Source     string
	Confidence float64
}

// NewCandidate returns an empty candidate for kind produced by strategy.
func NewCandidate(kind Kind, strategy, source string) Candidate {
	return Candidate{
		Kind:     kind,
		Fields:   make(map[string]string),
		Lists:    make(map[string][]string),
		Strategy: strategy,
		Source:   source,
	}
}

// Get returns the raw value of a field or "".
func (c Candidate) Get(field string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[field]
}

// Set stores v when non-empty.
func (c Candidate) Set(field, v string) {
	if v == "" || c.Fields == nil {
		return
	}
	c.Fields[field] = v
}

// Outcome is the per-candidate result of validation: either an accepted
// record or a skip with a reason.
type Outcome struct {
	Record Record
	Reason string
	Field  string
}

// Accept wraps a valid record.
func Accept(r Record) Outcome { return Outcome{Record: r} }

// Skip builds a rejection naming the field that failed.
func Skip(field, format string, args ...any) Outcome {
	return Outcome{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// OK reports whether the candidate became a record.
func (o Outcome) OK() bool { return o.Record != nil }

// Report aggregates outcomes for one extraction.
type Report struct {
	Accepted int            `json:"accepted"`
	Skipped  int            `json:"skipped"`
	Reasons  map[string]int `json:"reasons,omitempty"`
}

// Add counts one outcome.
func (r *Report) Add(o Outcome) {
	if o.OK() {
		r.Accepted++
		return
	}
	r.Skipped++
	if r.Reasons == nil {
		r.Reasons = make(map[string]int)
	}
	key := o.Field
	if key == "" {
		key = "other"
	}
	r.Reasons[key]++
}

// Merge folds other into r.
func (r *Report) Merge(other Report) {
	r.Accepted += other.Accepted
	r.Skipped += other.Skipped
	for k, v := range other.Reasons {
		if r.Reasons == nil {
			r.Reasons = make(map[string]int)
		}
		r.Reasons[k] += v
	}
}

// Total is the number of candidates seen.
func (r Report) Total() int { return r.Accepted + r.Skipped }

// SuccessRate is the accepted share in [0,1]; zero when nothing was seen.
func (r Report) SuccessRate() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Total())
}

// TopReasons returns skip reasons sorted by count, then name.
func (r Report) TopReasons() []string {
	keys := make([]string, 0, len(r.Reasons))
	for k := range r.Reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if r.Reasons[keys[i]] != r.Reasons[keys[j]] {
			return r.Reasons[keys[i]] > r.Reasons[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
