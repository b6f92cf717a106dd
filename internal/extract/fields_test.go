package extract

import (
	"reflect"
	"testing"
)

func TestFieldPatterns(t *testing.T) {
	text := "MAT0154 - Cálculo Diferencial e Integral I | 4 créditos | CH: 60 | Turma T01 | Prof. Maria da Silva | 24M34 | Sala 201 | 35/40 | 2024.1"
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"code", CourseCode(text), "MAT0154"},
		{"credits", Credits(text), "4"},
		{"workload", Workload(text), "60"},
		{"class", ClassCode(text), "T01"},
		{"professor", Professor(text), "Maria da Silva"},
		{"schedule", ScheduleCode(text), "24M34"},
		{"classroom", Classroom(text), "201"},
		{"semester", Semester(text), "2024.1"},
		{"name", GuessName(text), "Cálculo Diferencial e Integral I"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	enrolled, capacity := Vacancies(text)
	if enrolled != "35" || capacity != "40" {
		t.Fatalf("vacancies = %s/%s", enrolled, capacity)
	}
}

func TestClassCode_IgnoresCourseCodeDigits(t *testing.T) {
	if got := ClassCode("MAT045 turma 02"); got != "02" {
		t.Fatalf("class = %q", got)
	}
	if got := ClassCode("MAT045 sem turma"); got != "" {
		t.Fatalf("expected no class, got %q", got)
	}
}

func TestScheduleCode_NormalisesRuns(t *testing.T) {
	if got := ScheduleCode("Horário: 35N12, 6T23"); got != "35N12 6T23" {
		t.Fatalf("schedule = %q", got)
	}
}

func TestPrerequisites_ExcludeSelf(t *testing.T) {
	got := Prerequisites("FIS0201 Física II\nPré-requisitos: FIS0101, MAT0154 e FIS0201", "FIS0201")
	if !reflect.DeepEqual(got, []string{"FIS0101", "MAT0154"}) {
		t.Fatalf("prereqs = %v", got)
	}
}

func TestContactFields(t *testing.T) {
	text := "Prof. Dr. João Pereira - joao.pereira@ufx.edu.br - http://lattes.cnpq.br/1234567890123456 - Departamento de Computação"
	if Email(text) != "joao.pereira@ufx.edu.br" {
		t.Fatalf("email = %q", Email(text))
	}
	if Lattes(text) != "http://lattes.cnpq.br/1234567890123456" {
		t.Fatalf("lattes = %q", Lattes(text))
	}
	if Department(text) != "Computação" {
		t.Fatalf("department = %q", Department(text))
	}
	if Title(text) == "" {
		t.Fatalf("expected a title")
	}
}

func TestTimeRange(t *testing.T) {
	start, end := TimeRange("7:00 - 8:40")
	if start != "07:00" || end != "08:40" {
		t.Fatalf("range = %s-%s", start, end)
	}
}
