package detector

import (
	"strings"
	"testing"

	lingua "github.com/pemistahl/lingua-go"
)

func TestDetector_DetectISO(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{
			name:   "empty text",
			text:   "   ",
			wantOK: false,
		},
		{
			name:     "english contract",
			text:     "The Seller agrees to transfer ownership of the vehicle to the Buyer upon receipt of the full purchase price.",
			wantCode: "en",
			wantOK:   true,
		},
		{
			name:     "ukrainian contract",
			text:     "Продавець зобов'язується передати у власність Покупця автомобіль після отримання повної оплати.",
			wantCode: "uk",
			wantOK:   true,
		},
		{
			name:     "german contract",
			text:     "Der Verkäufer verpflichtet sich, das Eigentum an dem Fahrzeug nach Erhalt des vollständigen Kaufpreises auf den Käufer zu übertragen.",
			wantCode: "de",
			wantOK:   true,
		},
		{
			name:     "spanish contract",
			text:     "El vendedor se compromete a transferir la propiedad del vehículo al comprador una vez recibido el precio total de compra.",
			wantCode: "es",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := d.DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Errorf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
				return
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestDetector_RestrictedLanguages(t *testing.T) {
	d := New(lingua.English, lingua.French)

	lang, ok := d.Detect("Le locataire paiera le loyer le premier jour de chaque mois.")
	if !ok || lang != lingua.French {
		t.Errorf("expected French, got %v (ok=%v)", lang, ok)
	}
}

func TestSample(t *testing.T) {
	long := strings.Repeat("ж", sampleRunes+10)
	if got := []rune(sample(long)); len(got) != sampleRunes {
		t.Errorf("expected %d runes, got %d", sampleRunes, len(got))
	}
	if got := sample("short"); got != "short" {
		t.Errorf("unexpected sample %q", got)
	}
}
