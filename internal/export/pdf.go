package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/goradar/internal/job"
)

var summaryColumns = []struct {
	header string
	width  float64
}{
	{"Job", 62},
	{"Tipo", 24},
	{"Status", 22},
	{"Registros", 20},
	{"Criado em", 32},
	{"Duração", 20},
}

// SummaryPDF renders a job listing with per-job report details. The core
// fonts only cover Latin-1, so text goes through the cp1252 translator.
func SummaryPDF(w io.Writer, jobs []job.Job, generated time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Relatório de coleta"), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr("Relatório de coleta"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Gerado em %s, %d jobs", generated.Format("2006-01-02 15:04"), len(jobs))), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range summaryColumns {
		pdf.CellFormat(c.width, 6, tr(c.header), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, j := range jobs {
		cells := []string{
			j.ID,
			string(j.Kind),
			string(j.Status),
			fmt.Sprint(j.ResultsCount),
			j.CreatedAt.Format("2006-01-02 15:04:05"),
			duration(j),
		}
		for i, c := range summaryColumns {
			pdf.CellFormat(c.width, 5, tr(cells[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	for _, j := range jobs {
		lines := details(j)
		if len(lines) == 0 {
			continue
		}
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s (%s)", j.ID, j.Kind)), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, l := range lines {
			pdf.MultiCell(0, 5, tr(l), "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf write: %w", err)
	}
	return nil
}

func duration(j job.Job) string {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return "-"
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(time.Millisecond).String()
}

func details(j job.Job) []string {
	var lines []string
	if j.Error != "" {
		lines = append(lines, "Erro: "+j.Error)
	}
	if j.Report.Total() > 0 {
		lines = append(lines, fmt.Sprintf("Aceitos %d, descartados %d (%.0f%%)",
			j.Report.Accepted, j.Report.Skipped, j.Report.SuccessRate()*100))
		if top := j.Report.TopReasons(); len(top) > 0 {
			lines = append(lines, "Motivos: "+strings.Join(top, "; "))
		}
	}
	if d := j.Delivery; d != nil {
		lines = append(lines, fmt.Sprintf("Envio: enviados %d, processados %d, erros %d", d.Sent, d.Processed, d.Errors))
	}
	return lines
}
