// Package detector identifies the natural language a contract is written in.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// sampleRunes bounds how much of a contract is inspected; the opening
// clauses are enough and long documents are slow to score.
const sampleRunes = 4000

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over languages, or over every language lingua knows
// when none are given.
func New(languages ...lingua.Language) *Detector {
	var builder lingua.LanguageDetectorBuilder
	if len(languages) >= 2 {
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(languages...)
	} else {
		builder = lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	}
	return &Detector{detector: builder.Build()}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	text = sample(strings.TrimSpace(text))
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code of text, e.g. "en".
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

func sample(text string) string {
	if len(text) <= sampleRunes {
		return text
	}
	r := []rune(text)
	if len(r) <= sampleRunes {
		return text
	}
	return string(r[:sampleRunes])
}
