package lexicon

import (
	"testing"

	"github.com/park285/directory-assistant-go/internal/textnorm"
)

func mustDefault(t *testing.T) *Lexicon {
	t.Helper()
	lex, err := Default()
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}
	return lex
}

func TestServiceTypeAndCity(t *testing.T) {
	lex := mustDefault(t)

	tests := []struct {
		question    string
		wantService string
		wantCity    string
	}{
		{"¿Cuánto cuesta un fotógrafo en Monterrey?", "fotografia", "Monterrey"},
		{"busco plomeros en CDMX", "plomeria", "Ciudad de México"},
		{"necesito un salón de eventos en San Luis Potosí", "salones", "San Luis Potosí"},
		{"hola", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			folded := textnorm.Fold(tt.question)
			service, _ := lex.ServiceType(folded)
			city, _ := lex.City(folded)
			if service != tt.wantService || city != tt.wantCity {
				t.Fatalf("got service=%q city=%q, want %q %q", service, city, tt.wantService, tt.wantCity)
			}
		})
	}
}

func TestServiceLabel(t *testing.T) {
	lex := mustDefault(t)
	if got := lex.ServiceLabel("fotografia"); got != "fotógrafo" {
		t.Fatalf("unexpected label: %q", got)
	}
	if got := lex.ServiceLabel("desconocido"); got != "desconocido" {
		t.Fatalf("unknown service should echo: %q", got)
	}
}

func TestPhraseSetWordBoundaries(t *testing.T) {
	set := NewPhraseSet([]string{"dj", "foto", "sesión de fotos"})

	if !set.Contains("quiero un dj") {
		t.Fatalf("expected whole word match")
	}
	if set.Contains("adjunto archivo") {
		t.Fatalf("substring inside a word must not match")
	}
	if !set.Contains("fotos de boda") {
		t.Fatalf("expected plural to match")
	}
	if set.Contains("fotografo") {
		t.Fatalf("prefix of a longer word must not match")
	}

	found := set.Find("una sesion de fotos")
	if len(found) == 0 || found[0] != "sesion de fotos" {
		t.Fatalf("expected longest phrase first, got %v", found)
	}
}

func TestOrdinalAndDemonstrative(t *testing.T) {
	lex := mustDefault(t)

	if pos, ok := lex.Ordinal(textnorm.Fold("¿y el segundo?")); !ok || pos != 1 {
		t.Fatalf("expected second, got %d %v", pos, ok)
	}
	if pos, ok := lex.Ordinal(textnorm.Fold("el último")); !ok || pos != -1 {
		t.Fatalf("expected last, got %d %v", pos, ok)
	}
	if _, ok := lex.Ordinal("hola"); ok {
		t.Fatalf("unexpected ordinal")
	}
	if !lex.HasDemonstrative(textnorm.Fold("¿ése tiene teléfono?")) {
		t.Fatalf("expected demonstrative")
	}
}

func TestIsNonSlotReply(t *testing.T) {
	lex := mustDefault(t)

	for _, reply := range []string{"Gracias", "Hola", "Olvídalo", "No", "Ok", "no, gracias"} {
		if !lex.IsNonSlotReply(textnorm.Fold(reply)) {
			t.Fatalf("%q should be a non-slot reply", reply)
		}
	}
	for _, reply := range []string{"Tlaxcala", "San Luis Potosí", "Nogales"} {
		if lex.IsNonSlotReply(textnorm.Fold(reply)) {
			t.Fatalf("%q should be accepted as a slot value", reply)
		}
	}
}

func TestBudgetCeiling(t *testing.T) {
	lex := mustDefault(t)

	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"fotógrafo por menos de $3,000", 3000, true},
		{"presupuesto de 2500", 2500, true},
		{"hasta 800 pesos", 800, true},
		{"tengo 3 hijos", 0, false},
	}
	for _, tt := range tests {
		got, ok := lex.BudgetCeiling(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("%q: got %v %v, want %v %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTriggerPhrasesIncludeAllGroups(t *testing.T) {
	lex := mustDefault(t)
	set := NewPhraseSet(lex.TriggerPhrases())

	for _, q := range []string{"busco algo", "en guadalajara", "un electricista"} {
		if !set.Contains(textnorm.Fold(q)) {
			t.Fatalf("expected trigger in %q", q)
		}
	}
	if set.Contains(textnorm.Fold("¿cuánto cuesta?")) {
		t.Fatalf("cost question must not be a trigger")
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte("services: {}\n")); err == nil {
		t.Fatalf("expected error for empty lexicon")
	}
}
