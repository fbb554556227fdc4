package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/valpere/sctran/internal/detector"
)

type fixedDetector struct {
	lang string
	ok   bool
}

func (f fixedDetector) DetectISO(string) (string, bool) { return f.lang, f.ok }

func TestIsValid(t *testing.T) {
	long := "The lessee shall pay the monthly rent on the first day of each month."

	tests := []struct {
		name    string
		det     Detector
		text    string
		lang    string
		want    bool
		wantErr bool
	}{
		{"empty target lang", fixedDetector{"de", true}, long, "", true, false},
		{"empty text", fixedDetector{"en", true}, "", "en", false, true},
		{"whitespace only", fixedDetector{"en", true}, "   ", "en", false, true},
		{"short text skips detection", fixedDetector{"de", true}, "Rent: 500 EUR", "en", true, false},
		{"match", fixedDetector{"en", true}, long, "en", true, false},
		{"case insensitive", fixedDetector{"EN", true}, long, "en", true, false},
		{"mismatch", fixedDetector{"de", true}, long, "en", false, true},
		{"undetermined passes", fixedDetector{"", false}, long, "en", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.det).IsValid(tt.text, tt.lang)
			if got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("IsValid() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValid_MismatchNamesBothCodes(t *testing.T) {
	_, err := New(fixedDetector{"uk", true}).IsValid("Орендар сплачує орендну плату щомісяця.", "en")
	if err == nil || !strings.Contains(err.Error(), "en") || !strings.Contains(err.Error(), "uk") {
		t.Errorf("expected error naming en and uk, got %v", err)
	}
}

func TestIsValid_RealDetector(t *testing.T) {
	v := New(detector.New())
	ok, err := v.IsValid("The seller agrees to transfer ownership of the vehicle to the buyer upon full payment.", "en")
	if !ok || err != nil {
		t.Errorf("expected English text to validate, got %v %v", ok, err)
	}
	ok, _ = v.IsValid("Der Verkäufer verpflichtet sich, das Eigentum am Fahrzeug nach vollständiger Zahlung zu übertragen.", "en")
	if ok {
		t.Error("expected German text to be rejected")
	}
}

type stubTranslator struct {
	out string
	err error
}

func (s stubTranslator) ToEnglish(context.Context, string, string) (string, error) {
	return s.out, s.err
}

func TestGuard(t *testing.T) {
	long := "The tenant pays rent monthly to the landlord."
	ctx := context.Background()

	out, err := New(fixedDetector{"en", true}).Guard(stubTranslator{out: long}).ToEnglish(ctx, "x", "de")
	if err != nil || out != long {
		t.Errorf("expected pass-through, got %q %v", out, err)
	}

	_, err = New(fixedDetector{"de", true}).Guard(stubTranslator{out: long}).ToEnglish(ctx, "x", "de")
	if err == nil || !strings.Contains(err.Error(), "pre-translation rejected") {
		t.Errorf("expected rejection, got %v", err)
	}

	boom := errors.New("quota exceeded")
	_, err = New(fixedDetector{"en", true}).Guard(stubTranslator{err: boom}).ToEnglish(ctx, "x", "de")
	if !errors.Is(err, boom) {
		t.Errorf("expected translator error, got %v", err)
	}
}
