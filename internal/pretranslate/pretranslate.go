// Package pretranslate machine-translates non-English contracts to English
// before they reach the parser stage.
package pretranslate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// DefaultMaxChars keeps each request comfortably under the API's per-text
// limit.
const DefaultMaxChars = 4500

// Translator renders text in English.
type Translator interface {
	ToEnglish(ctx context.Context, text, sourceLang string) (string, error)
}

// textTranslator is the subset of *translate.Client used here.
type textTranslator interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

// Google translates through the Cloud Translation basic API.
type Google struct {
	maxChars int
	dial     func(ctx context.Context) (textTranslator, error)
}

// NewGoogle uses credentialsFile when set, otherwise application default
// credentials. project, when set, is billed as the quota project.
func NewGoogle(credentialsFile, project string) *Google {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	return &Google{
		maxChars: DefaultMaxChars,
		dial: func(ctx context.Context) (textTranslator, error) {
			return translate.NewClient(ctx, opts...)
		},
	}
}

func (g *Google) ToEnglish(ctx context.Context, text, sourceLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("pretranslate: empty text")
	}

	var opts *translate.Options
	if sourceLang != "" && sourceLang != "auto" {
		tag, err := language.Parse(sourceLang)
		if err != nil {
			return "", fmt.Errorf("invalid source language %q: %w", sourceLang, err)
		}
		if base, _ := tag.Base(); base.String() == "en" {
			return text, nil
		}
		opts = &translate.Options{Source: tag, Format: translate.Text}
	} else {
		opts = &translate.Options{Format: translate.Text}
	}

	client, err := g.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	protected, spans := Protect(text)
	parts := Split(protected, g.maxChars)
	translations, err := client.Translate(ctx, parts, language.English, opts)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) != len(parts) {
		return "", fmt.Errorf("translation returned %d parts, expected %d", len(translations), len(parts))
	}

	out := make([]string, len(translations))
	for i, tr := range translations {
		out[i] = tr.Text
	}
	joined := strings.Join(out, "\n\n")
	if missing := Missing(joined, spans); len(missing) > 0 {
		return "", fmt.Errorf("translation dropped %d protected span(s)", len(missing))
	}
	return Restore(joined, spans), nil
}
