package pretranslate

import (
	"context"
	"strings"
	"testing"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
)

func TestProtect_NoSpans(t *testing.T) {
	text := "Der Verkäufer verkauft das Auto."
	got, spans := Protect(text)
	if got != text || len(spans) != 0 {
		t.Errorf("expected unchanged text, got %q with %d spans", got, len(spans))
	}
}

func TestProtect_RoundTrip(t *testing.T) {
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"
	text := "Zahlung an " + addr + " gemäß `release()` siehe https://example.com/terms.\n```\nfunction pay() {}\n```"

	got, spans := Protect(text)
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d: %v", len(spans), spans)
	}
	if spans[0] != "```\nfunction pay() {}\n```" || spans[1] != "`release()`" || spans[2] != addr {
		t.Errorf("unexpected span order %q", spans)
	}
	if !strings.HasPrefix(spans[3], "https://example.com/terms") {
		t.Errorf("unexpected URL span %q", spans[3])
	}
	for _, s := range spans {
		if strings.Contains(got, s) {
			t.Errorf("span %q still present in %q", s, got)
		}
	}
	if back := Restore(got, spans); back != text {
		t.Errorf("Restore() = %q, want %q", back, text)
	}
}

func TestRestore_UnknownIndex(t *testing.T) {
	if got := Restore("keep [PH7] here", []string{"x"}); got != "keep [PH7] here" {
		t.Errorf("unexpected %q", got)
	}
}

func TestMissing(t *testing.T) {
	spans := []string{"a", "b", "c"}
	got := Missing("[PH0] and [PH2]", spans)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected [1], got %v", got)
	}
}

type droppingClient struct{ fakeClient }

func (d *droppingClient) Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
	out := make([]translate.Translation, len(inputs))
	for i, in := range inputs {
		out[i] = translate.Translation{Text: reMarker.ReplaceAllString(in, "")}
	}
	return out, nil
}

func TestGoogle_ProtectsSpans(t *testing.T) {
	fc := &fakeClient{}
	g := newFake(fc, DefaultMaxChars)

	out, err := g.ToEnglish(context.Background(), "Zahlung an `escrow.release()` leisten.", "de")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(fc.inputs[0], "escrow.release()") {
		t.Errorf("code span must not be sent for translation: %q", fc.inputs[0])
	}
	if out != "EN(Zahlung an `escrow.release()` leisten.)" {
		t.Errorf("unexpected output %q", out)
	}

	dc := &droppingClient{}
	g = &Google{maxChars: DefaultMaxChars, dial: func(ctx context.Context) (textTranslator, error) { return dc, nil }}
	if _, err := g.ToEnglish(context.Background(), "Zahlung an `pay()` leisten.", "de"); err == nil {
		t.Error("expected error when markers are dropped")
	}
}
