package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperifyio/goradar/internal/delivery"
	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/record"
)

func sample() []record.Record {
	return []record.Record{
		record.Course{Code: "MAT101", Name: "Cálculo I", Credits: 4, Workload: 60, Department: "Matemática", Prerequisites: []string{}},
		record.Structure{Code: "112140-20212", CourseCode: "112140", Validity: "2021.2", ComponentsByPeriod: map[string][]string{"2": {"MATA38"}, "1": {"MATA01", "MATA02"}}},
		record.Course{Code: "FIS121", Name: "Física I", Credits: 4, Workload: 60, Department: "Física", Prerequisites: []string{"MAT101"}},
	}
}

func TestXLSX_OneSheetPerKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, sample()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{"courses", "structures"}, f.GetSheetList())

	rows, err := f.GetRows("courses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Código", rows[0][0])
	require.Equal(t, "MAT101", rows[1][0])
	require.Equal(t, "FIS121", rows[2][0])
	require.Equal(t, "MAT101", rows[2][6])

	periods, err := f.GetCellValue("structures", "G2")
	require.NoError(t, err)
	require.Equal(t, "1: MATA01, MATA02; 2: MATA38", periods)
}

func TestXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, nil))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.Len(t, f.GetSheetList(), 1)
}

func TestJSON_GroupsByKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sample()))

	var got map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, len(record.Kinds))
	require.Len(t, got["courses"], 2)
	require.Equal(t, "FIS121", got["courses"][1]["courseCode"])
	require.Empty(t, got["professors"])
	require.Equal(t, "112140-20212", got["structures"][0]["structureCode"])
}

func TestSummaryPDF(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	jobs := []job.Job{
		{ID: "a", Kind: record.KindCourses, Status: job.StatusCompleted, CreatedAt: start, StartedAt: &start, CompletedAt: &end, ResultsCount: 2,
			Report:   record.Report{Accepted: 2, Skipped: 1, Reasons: map[string]int{"courseCode": 1}},
			Delivery: &delivery.Summary{Sent: 2, Processed: 2}},
		{ID: "b", Kind: record.KindProfessors, Status: job.StatusFailed, CreatedAt: start, Error: "página não encontrada"},
	}
	var buf bytes.Buffer
	require.NoError(t, SummaryPDF(&buf, jobs, end))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	require.Equal(t, "1.5s", duration(jobs[0]))
	require.Equal(t, "-", duration(jobs[1]))
	lines := details(jobs[0])
	require.Equal(t, []string{
		"Aceitos 2, descartados 1 (67%)",
		"Motivos: courseCode",
		"Envio: enviados 2, processados 2, erros 0",
	}, lines)
}
