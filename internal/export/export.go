// Package export renders collected records and job summaries for people:
// XLSX workbooks with one sheet per kind, grouped JSON and a PDF report.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperifyio/goradar/internal/record"
)

// Format names accepted by the CLI.
const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"
	FormatPDF  = "pdf"
)

type column struct {
	header string
	width  float64
	value  func(record.Record) any
}

func join(list []string) string { return strings.Join(list, ", ") }

func ints(list []int) string {
	parts := make([]string, 0, len(list))
	for _, n := range list {
		parts = append(parts, fmt.Sprint(n))
	}
	return strings.Join(parts, ",")
}

func periods(m map[string][]string) string {
	var b strings.Builder
	for p := 0; p <= 20; p++ {
		key := fmt.Sprint(p)
		if codes, ok := m[key]; ok {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", key, join(codes))
		}
	}
	return b.String()
}

var columns = map[record.Kind][]column{
	record.KindCourses: {
		{"Código", 12, func(r record.Record) any { return r.(record.Course).Code }},
		{"Nome", 40, func(r record.Record) any { return r.(record.Course).Name }},
		{"Créditos", 10, func(r record.Record) any { return r.(record.Course).Credits }},
		{"CH", 8, func(r record.Record) any { return r.(record.Course).Workload }},
		{"Departamento", 30, func(r record.Record) any { return r.(record.Course).Department }},
		{"Semestre", 10, func(r record.Record) any { return r.(record.Course).Semester }},
		{"Pré-requisitos", 30, func(r record.Record) any { return join(r.(record.Course).Prerequisites) }},
	},
	record.KindSchedules: {
		{"Disciplina", 12, func(r record.Record) any { return r.(record.ScheduleEntry).CourseCode }},
		{"Turma", 8, func(r record.Record) any { return r.(record.ScheduleEntry).ClassCode }},
		{"Docente", 30, func(r record.Record) any { return r.(record.ScheduleEntry).Professor }},
		{"Horário", 14, func(r record.Record) any { return r.(record.ScheduleEntry).ScheduleText }},
		{"Dias", 10, func(r record.Record) any { return ints(r.(record.ScheduleEntry).DaysOfWeek) }},
		{"Início", 8, func(r record.Record) any { return r.(record.ScheduleEntry).StartTime }},
		{"Fim", 8, func(r record.Record) any { return r.(record.ScheduleEntry).EndTime }},
		{"Sala", 10, func(r record.Record) any { return r.(record.ScheduleEntry).Classroom }},
		{"Vagas", 8, func(r record.Record) any { return r.(record.ScheduleEntry).MaxStudents }},
		{"Matriculados", 12, func(r record.Record) any { return r.(record.ScheduleEntry).EnrolledStudents }},
		{"Semestre", 10, func(r record.Record) any { return r.(record.ScheduleEntry).Semester }},
	},
	record.KindProfessors: {
		{"Nome", 34, func(r record.Record) any { return r.(record.Professor).Name }},
		{"E-mail", 30, func(r record.Record) any { return r.(record.Professor).Email }},
		{"Departamento", 30, func(r record.Record) any { return r.(record.Professor).Department }},
		{"Titulação", 14, func(r record.Record) any { return r.(record.Professor).Title }},
		{"Lattes", 40, func(r record.Record) any { return r.(record.Professor).LattesURL }},
		{"Disciplinas", 30, func(r record.Record) any { return join(r.(record.Professor).CoursesTaught) }},
	},
	record.KindSyllabi: {
		{"Disciplina", 12, func(r record.Record) any { return r.(record.Syllabus).CourseCode }},
		{"Nome", 36, func(r record.Record) any { return r.(record.Syllabus).CourseName }},
		{"Semestre", 10, func(r record.Record) any { return r.(record.Syllabus).Semester }},
		{"Confiança", 10, func(r record.Record) any { return r.(record.Syllabus).ExtractionConfidence }},
		{"Objetivos", 48, func(r record.Record) any { return r.(record.Syllabus).Objectives }},
		{"Ementa", 48, func(r record.Record) any { return r.(record.Syllabus).Content }},
		{"Bibliografia", 48, func(r record.Record) any { return strings.Join(r.(record.Syllabus).Bibliography, "\n") }},
		{"PDF", 40, func(r record.Record) any { return r.(record.Syllabus).PDFURL }},
	},
	record.KindComponents: {
		{"Curso", 10, func(r record.Record) any { return r.(record.Component).CourseCode }},
		{"Código", 12, func(r record.Record) any { return r.(record.Component).Code }},
		{"Nome", 40, func(r record.Record) any { return r.(record.Component).Name }},
		{"CH", 8, func(r record.Record) any { return r.(record.Component).Workload }},
		{"Natureza", 14, func(r record.Record) any { return r.(record.Component).Nature }},
		{"Pré-requisitos", 24, func(r record.Record) any { return join(r.(record.Component).Prerequisites) }},
		{"Correquisitos", 24, func(r record.Record) any { return join(r.(record.Component).Corequisites) }},
	},
	record.KindStructures: {
		{"Curso", 10, func(r record.Record) any { return r.(record.Structure).CourseCode }},
		{"Estrutura", 16, func(r record.Record) any { return r.(record.Structure).Code }},
		{"Matriz", 30, func(r record.Record) any { return r.(record.Structure).Matrix }},
		{"Vigência", 10, func(r record.Record) any { return r.(record.Structure).Validity }},
		{"CH obrigatória", 14, func(r record.Record) any { return r.(record.Structure).MandatoryWorkload }},
		{"CH optativa", 12, func(r record.Record) any { return r.(record.Structure).OptionalWorkload }},
		{"Componentes por período", 60, func(r record.Record) any { return periods(r.(record.Structure).ComponentsByPeriod) }},
	},
}

// XLSX writes a workbook with one sheet per kind present in recs, in kind
// order. An empty record set yields a single empty sheet.
func XLSX(w io.Writer, recs []record.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	groups := record.GroupByKind(recs)
	first := true
	for _, kind := range record.Kinds {
		list := groups[kind]
		if len(list) == 0 {
			continue
		}
		sheet := string(kind)
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, columns[kind], list); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, cols []column, list []record.Record) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, c.header); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, c.width)
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
	for row, rec := range list {
		for i, c := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, row+2)
			if err := f.SetCellValue(sheet, cell, c.value(rec)); err != nil {
				return fmt.Errorf("xlsx %s row %d: %w", sheet, row+2, err)
			}
		}
	}
	return nil
}

// JSON writes records grouped by kind, every kind present as a key.
func JSON(w io.Writer, recs []record.Record) error {
	groups := record.GroupByKind(recs)
	out := make(map[string][]record.Record, len(record.Kinds))
	for _, kind := range record.Kinds {
		list := groups[kind]
		if list == nil {
			list = []record.Record{}
		}
		out[string(kind)] = list
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
