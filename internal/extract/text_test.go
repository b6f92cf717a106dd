package extract

import (
	"strings"
	"testing"
)

func TestFromHTML_PrefersMainAndSkipsBoilerplate(t *testing.T) {
	in := []byte(`<html><head><title> Oferta </title><script>var x=1</script></head>
<body><nav>Menu Home</nav>
<main><h1>Disciplinas</h1><p>MAT0154 Cálculo I</p>
<div class="cookie-banner">Aceite os cookies</div></main>
<footer>Rodapé</footer></body></html>`)
	r := FromHTML(in)
	if r.Title != "Oferta" {
		t.Fatalf("title = %q", r.Title)
	}
	if !strings.Contains(r.Text, "MAT0154 Cálculo I") {
		t.Fatalf("main text missing: %q", r.Text)
	}
	for _, bad := range []string{"Menu", "Rodapé", "cookies", "var x"} {
		if strings.Contains(r.Text, bad) {
			t.Fatalf("boilerplate %q leaked into %q", bad, r.Text)
		}
	}
}

func TestFromHTML_FallsBackToBody(t *testing.T) {
	r := FromHTML([]byte(`<html><body><p>Primeiro</p><p>Segundo</p></body></html>`))
	if r.Text != "Primeiro\n\nSegundo" {
		t.Fatalf("text = %q", r.Text)
	}
}

func TestFoldAndClean(t *testing.T) {
	if got := Fold("Avaliação  BIBLIOGRAFIA"); got != "avaliacao  bibliografia" {
		t.Fatalf("Fold = %q", got)
	}
	if got := Clean("  a  b\t\tc \n d "); got != "a b c d" {
		t.Fatalf("Clean = %q", got)
	}
}
