// Package validator checks that machine-translated contract text is in the
// expected language before the pipeline relies on it.
package validator

import (
	"context"
	"fmt"
	"strings"
)

// minValidationLength is the rune count below which detection is unreliable
// and text is accepted unchecked.
const minValidationLength = 20

// Detector returns the ISO 639-1 code of text.
type Detector interface {
	DetectISO(text string) (string, bool)
}

// Validator checks the language of translated text. Detectors are expensive
// to build; share one with the pipeline.
type Validator struct {
	det Detector
}

func New(det Detector) *Validator {
	return &Validator{det: det}
}

// IsValid reports whether text appears to be written in lang. Short texts and
// texts whose language cannot be determined pass. A mismatch names both
// codes in the error.
func (v *Validator) IsValid(text, lang string) (bool, error) {
	if lang == "" {
		return true, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}
	if !strings.EqualFold(detected, lang) {
		return false, fmt.Errorf("expected %s but detected %s", lang, detected)
	}
	return true, nil
}

// EnglishTranslator matches pretranslate.Translator.
type EnglishTranslator interface {
	ToEnglish(ctx context.Context, text, sourceLang string) (string, error)
}

// Guard wraps t so that output not detected as English is returned as an
// error instead of being passed on.
func (v *Validator) Guard(t EnglishTranslator) EnglishTranslator {
	return &guarded{next: t, v: v}
}

type guarded struct {
	next EnglishTranslator
	v    *Validator
}

func (g *guarded) ToEnglish(ctx context.Context, text, sourceLang string) (string, error) {
	out, err := g.next.ToEnglish(ctx, text, sourceLang)
	if err != nil {
		return "", err
	}
	if ok, err := g.v.IsValid(out, "en"); !ok {
		return "", fmt.Errorf("pre-translation rejected: %w", err)
	}
	return out, nil
}
