package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/goradar/internal/fetch"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
)

var sampleLines = []string{
	"PLANO DE ENSINO",
	"MATA37 - Introducao a Logica de Programacao",
	"Objetivos: Desenvolver o raciocinio logico e a capacidade de abstracao.",
	"Ementa",
	"Algoritmos, tipos de dados, estruturas de controle e funcoes.",
	"Metodologia: Aulas expositivas e praticas em laboratorio.",
	"Avaliacao: Duas provas escritas e um trabalho final.",
	"Competencias: Projetar algoritmos corretos; Implementar programas estruturados",
	"Bibliografia",
	"1. CORMEN, T. Algoritmos: teoria e pratica. Elsevier, 2012.",
	"2. FORBELLONE, A. Logica de programacao. Pearson, 2005.",
	"3. ZIVIANI, N. Projeto de algoritmos. Cengage, 2011.",
}

var sampleText = strings.Join(sampleLines, "\n")

func TestSegment_FindsSectionsAndSplitsLists(t *testing.T) {
	s := Segment(CleanText(sampleText))
	if s.Objectives != "Desenvolver o raciocinio logico e a capacidade de abstracao." {
		t.Fatalf("objectives = %q", s.Objectives)
	}
	if s.Content != "Algoritmos, tipos de dados, estruturas de controle e funcoes." {
		t.Fatalf("content = %q", s.Content)
	}
	if s.Methodology == "" || s.Evaluation != "Duas provas escritas e um trabalho final." {
		t.Fatalf("methodology=%q evaluation=%q", s.Methodology, s.Evaluation)
	}
	if len(s.Bibliography) != 3 || !strings.HasPrefix(s.Bibliography[1], "FORBELLONE") {
		t.Fatalf("bibliography = %#v", s.Bibliography)
	}
	if len(s.Competencies) != 2 || s.Competencies[1] != "Implementar programas estruturados" {
		t.Fatalf("competencies = %#v", s.Competencies)
	}
	if got := len(s.Found()); got != len(AllSections) {
		t.Fatalf("found %d sections", got)
	}
}

func TestSegment_AccentedHeadingsKeepOriginalBody(t *testing.T) {
	s := Segment("Avaliação: Provas práticas e seminários em grupo.\nConteúdo Programático: Introdução à computação e lógica.")
	if s.Evaluation != "Provas práticas e seminários em grupo." {
		t.Fatalf("evaluation = %q", s.Evaluation)
	}
	if s.Content != "Introdução à computação e lógica." {
		t.Fatalf("content = %q", s.Content)
	}
}

func TestSegment_ShortBodyIsIgnored(t *testing.T) {
	s := Segment("Objetivos: ver\nMetodologia\nAulas expositivas dialogadas.")
	if s.Objectives != "" || s.Methodology != "Aulas expositivas dialogadas." {
		t.Fatalf("objectives=%q methodology=%q", s.Objectives, s.Methodology)
	}
}

func TestSplitBibliography_Cascade(t *testing.T) {
	blocks := "STEWART, J. Calculo. Cengage,\n2013.\n\nANTON, H. Calculo. Bookman, 2014."
	if got := SplitBibliography(blocks); len(got) != 2 || got[0] != "STEWART, J. Calculo. Cengage, 2013." {
		t.Fatalf("blank-line split = %#v", got)
	}
	lines := "STEWART, J. Calculo. Cengage, 2013.\ncurta\nANTON, H. Calculo. Bookman, 2014."
	if got := SplitBibliography(lines); len(got) != 2 {
		t.Fatalf("line split = %#v", got)
	}
	var numbered strings.Builder
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&numbered, "%d. AUTOR, A. Obra numero %d. Editora, 2020.\n", i, i)
	}
	if got := SplitBibliography(numbered.String()); len(got) != maxBibliography {
		t.Fatalf("expected cap at %d, got %d", maxBibliography, len(got))
	}
}

func TestScore_MonotonicInSectionsAndClamped(t *testing.T) {
	w := DefaultWeights()
	text := strings.Repeat("palavra ", 100)
	steps := []Sections{
		{},
		{Objectives: "x"},
		{Objectives: "x", Content: "x"},
		{Objectives: "x", Content: "x", Methodology: "x"},
		{Objectives: "x", Content: "x", Methodology: "x", Evaluation: "x"},
		{Objectives: "x", Content: "x", Methodology: "x", Evaluation: "x", Bibliography: []string{"x"}},
		{Objectives: "x", Content: "x", Methodology: "x", Evaluation: "x", Bibliography: []string{"x"}, Competencies: []string{"x"}},
	}
	for _, identified := range []bool{false, true} {
		prev := -1.0
		for i, s := range steps {
			got := w.Score(text, s, identified)
			if got < prev || got < 0 || got > 1 {
				t.Fatalf("step %d identified=%v: score %v after %v", i, identified, got, prev)
			}
			prev = got
		}
	}
	heavy := w
	heavy.Base, heavy.Identity = 5, 5
	if got := heavy.Score(text, steps[len(steps)-1], true); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	if got := w.Score("", Sections{}, false); got != 0 {
		t.Fatalf("empty text score = %v", got)
	}
}

func TestScore_LengthFactors(t *testing.T) {
	w := DefaultWeights()
	s := Sections{Objectives: "x"}
	short := w.Score(strings.Repeat("a", 200), s, false)
	normal := w.Score(strings.Repeat("a", 2000), s, false)
	long := w.Score(strings.Repeat("a", 20000), s, false)
	if !(short < long && long < normal) {
		t.Fatalf("short=%v normal=%v long=%v", short, normal, long)
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	w := DefaultWeights()
	w.Sections[Content] = 0.5
	if err := w.Validate(); err == nil {
		t.Fatalf("expected error for section weights summing past 1")
	}
	w = DefaultWeights()
	w.LongFactor = 0
	if err := w.Validate(); err == nil {
		t.Fatalf("expected error for zero factor")
	}
}

func TestInferCodeAndName(t *testing.T) {
	if got := InferCode(sampleText); got != "MATA37" {
		t.Fatalf("code = %q", got)
	}
	if got := InferName(sampleText); got != "Introducao a Logica de Programacao" {
		t.Fatalf("name = %q", got)
	}
	labelled := "UNIVERSIDADE FEDERAL\nCódigo: mat0154\nDisciplina: Cálculo Diferencial e Integral I\n"
	if InferCode(labelled) != "MAT0154" || InferName(labelled) != "Cálculo Diferencial e Integral I" {
		t.Fatalf("labelled: code=%q name=%q", InferCode(labelled), InferName(labelled))
	}
}

type fakeBackend struct {
	name  string
	text  string
	err   error
	calls *int
}

func (f fakeBackend) Name() string { return f.name }

func (f fakeBackend) Text([]byte) (string, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.text, f.err
}

func TestAnalyzer_FallbackKeepsBetterResult(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 fake")
	a := &Analyzer{
		Weights:       DefaultWeights(),
		Primary:       fakeBackend{name: "a", text: "MATA37 texto corrido sem estrutura"},
		Fallback:      fakeBackend{name: "b", text: sampleText},
		FallbackBelow: 0.5,
	}
	res, err := a.Analyze(pdfBytes, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Backend != "b" || res.Code != "MATA37" || res.Confidence < 0.5 {
		t.Fatalf("unexpected result: backend=%s code=%s conf=%v", res.Backend, res.Code, res.Confidence)
	}

	calls := 0
	a.Primary = fakeBackend{name: "a", text: sampleText}
	a.Fallback = fakeBackend{name: "b", text: sampleText, calls: &calls}
	res, _ = a.Analyze(pdfBytes, "", "")
	if res.Backend != "a" || calls != 0 {
		t.Fatalf("fallback should not run for a confident primary: backend=%s calls=%d", res.Backend, calls)
	}

	a.Primary = fakeBackend{name: "a", err: errors.New("broken")}
	a.Fallback = fakeBackend{name: "b", err: errors.New("broken")}
	if _, err := a.Analyze(pdfBytes, "", ""); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	if _, err := a.Analyze([]byte("<html>"), "", ""); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestAnalyzeText_KnownIdentityWins(t *testing.T) {
	res := NewAnalyzer(DefaultWeights()).AnalyzeText(sampleText, "MATA99", "Outro Nome Qualquer")
	if res.Code != "MATA99" || res.Name != "Outro Nome Qualquer" {
		t.Fatalf("identity not kept: %+v", res)
	}
}

func pdfFixture(t *testing.T, lines []string) []byte {
	t.Helper()
	f := gofpdf.New("P", "mm", "A4", "")
	f.SetCompression(false)
	f.SetFont("Helvetica", "", 11)
	f.AddPage()
	for _, l := range lines {
		f.CellFormat(0, 6, l, "", 1, "L", false, 0, "")
	}
	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		t.Fatalf("render fixture: %v", err)
	}
	return buf.Bytes()
}

func documentServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	fixture := pdfFixture(t, sampleLines[:6])
	mux := http.NewServeMux()
	mux.HandleFunc("/ementa.pdf", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(fixture)
	})
	mux.HandleFunc("/grande.pdf", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 4096)...))
	})
	mux.HandleFunc("/pagina.pdf", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>login</body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_TooLargeAndNotPDF(t *testing.T) {
	var hits int32
	srv := documentServer(t, &hits)
	client := &fetch.Client{MaxAttempts: 1}
	if _, err := Fetch(context.Background(), client, srv.URL+"/grande.pdf", 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := Fetch(context.Background(), client, srv.URL+"/pagina.pdf", 1024); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestPipeline_ProcessAll(t *testing.T) {
	var hits int32
	srv := documentServer(t, &hits)
	p := &Pipeline{Analyzer: NewAnalyzer(DefaultWeights()), MaxBytes: 1 << 20, MinConfidence: 0.01, MaxConcurrent: 2}
	targets := []Target{
		{URL: srv.URL + "/ementa.pdf", Semester: "2024.1"},
		{URL: srv.URL + "/pagina.pdf"},
		{URL: srv.URL + "/ausente.pdf"},
	}
	got, rep := p.ProcessAll(context.Background(), &fetch.Client{MaxAttempts: 1}, targets)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d (report %+v)", len(got), rep)
	}
	c := got[0]
	if c.Kind != record.KindSyllabi || c.Get(record.FieldCourseCode) != "MATA37" || c.Get(record.FieldSemester) != "2024.1" {
		t.Fatalf("unexpected candidate %+v", c.Fields)
	}
	if c.Get(record.FieldDocumentURL) != targets[0].URL || c.Confidence <= 0 || c.Confidence > 1 {
		t.Fatalf("unexpected provenance: %+v conf=%v", c.Fields, c.Confidence)
	}
	if rep.Skipped != 2 || rep.Reasons["format"] != 1 || rep.Reasons["download"] != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestPipeline_OversizedDocumentYieldsNothing(t *testing.T) {
	var hits int32
	srv := documentServer(t, &hits)
	p := &Pipeline{MaxBytes: 1024}
	got, rep := p.ProcessAll(context.Background(), &fetch.Client{MaxAttempts: 1}, []Target{{URL: srv.URL + "/grande.pdf"}})
	if len(got) != 0 || rep.Reasons["size"] != 1 {
		t.Fatalf("got %d candidates, report %+v", len(got), rep)
	}
}

func TestPipeline_LowConfidenceDropped(t *testing.T) {
	var hits int32
	srv := documentServer(t, &hits)
	p := &Pipeline{MinConfidence: 0.99}
	got, rep := p.ProcessAll(context.Background(), &fetch.Client{MaxAttempts: 1}, []Target{{URL: srv.URL + "/ementa.pdf"}})
	if len(got) != 0 || rep.Reasons["confidence"] != 1 {
		t.Fatalf("got %d candidates, report %+v", len(got), rep)
	}
}

func TestPipeline_CancelledStartsNoDocuments(t *testing.T) {
	var hits int32
	srv := documentServer(t, &hits)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{}
	got, _ := p.ProcessAll(ctx, &fetch.Client{MaxAttempts: 1}, []Target{{URL: srv.URL + "/ementa.pdf"}, {URL: srv.URL + "/ementa.pdf"}})
	if len(got) != 0 || atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected nothing started, got %d candidates and %d requests", len(got), hits)
	}
}

func TestDiscover(t *testing.T) {
	doc, err := page.NewDocument("https://ufx.edu.br/graduacao/index.html", []byte(`<html><body>
<table>
<tr><td>MATA37</td><td>Introducao a Logica de Programacao</td><td><a href="/ementas/mata37.pdf">PDF</a></td></tr>
<tr><td>MATA02</td><td>Calculo A</td><td><a href="plano.php?id=2">Ementa</a></td></tr>
</table>
<ul><li class="course-item">MATA38 Projeto de Circuitos Logicos <a href="/docs/mata38.pdf?utm_source=x">baixar</a></li></ul>
<a href="/ementas/mata37.pdf#top">duplicado</a>
<a href="/sobre">Sobre</a>
</body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	got := Discover(doc, "2024.1")
	want := []Target{
		{URL: "https://ufx.edu.br/ementas/mata37.pdf", Code: "MATA37"},
		{URL: "https://ufx.edu.br/docs/mata38.pdf", Code: "MATA38"},
		{URL: "https://ufx.edu.br/graduacao/plano.php?id=2", Code: "MATA02"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d targets: %+v", len(got), got)
	}
	for i := range want {
		if got[i].URL != want[i].URL || got[i].Code != want[i].Code || got[i].Semester != "2024.1" {
			t.Fatalf("target %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
