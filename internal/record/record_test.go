package record

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestWireRoundTrip_PreservesFields(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	in := ScheduleEntry{
		Meta:             Meta{ScrapedAt: at, SourceURL: "https://sigaa.example.edu/turmas", ExtractorVersion: "1.0"},
		CourseCode:       "MATA37",
		ClassCode:        "T01",
		Professor:        "Maria Silva",
		ScheduleText:     "24M34",
		DaysOfWeek:       []int{2, 4},
		StartTime:        "08:50",
		EndTime:          "10:30",
		Classroom:        "PAF1-201",
		MaxStudents:      45,
		EnrolledStudents: 40,
		Semester:         "2025.1",
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"courseCode"`, `"scheduleText"`, `"daysOfWeek"`, `"scrapedAt"`, `"sourceUrl"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("wire format missing %s: %s", key, b)
		}
	}
	out, err := Decode(KindSchedules, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", out, in)
	}
}

func TestEnvelope_WrapsByKind(t *testing.T) {
	recs := []Record{Course{Code: "MATA01", Name: "Geometria Analitica", Credits: 4, Workload: 60, Prerequisites: []string{}}}
	b, err := Envelope(KindCourses, recs)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	var body map[string][]json.RawMessage
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body["courses"]) != 1 {
		t.Fatalf("expected one course in envelope, got %s", b)
	}
	empty, _ := Envelope(KindSyllabi, nil)
	if string(empty) != `{"syllabi":[]}` {
		t.Fatalf("unexpected empty envelope: %s", empty)
	}
}

func TestParseKind_Aliases(t *testing.T) {
	cases := map[string]Kind{"courses": KindCourses, "Cursos": KindCourses, "componentes": KindComponents, " syllabus ": KindSyllabi}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("grades"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestReport_Aggregates(t *testing.T) {
	var r Report
	r.Add(Accept(Course{Code: "MATA01"}))
	r.Add(Skip(FieldCode, "bad code %q", "X1"))
	r.Add(Skip(FieldCode, "empty"))
	r.Add(Skip(FieldName, "empty"))
	if r.Total() != 4 || r.Accepted != 1 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if got := r.TopReasons(); got[0] != FieldCode {
		t.Fatalf("expected code first, got %v", got)
	}
	if r.SuccessRate() != 0.25 {
		t.Fatalf("unexpected rate %v", r.SuccessRate())
	}
}
