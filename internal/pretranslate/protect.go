package pretranslate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`]+`")
	reAddress    = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	reURL        = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

	reMarker = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Protect replaces spans machine translation must not touch (fenced and
// inline code, Ethereum addresses, URLs) with numbered [PHn] markers, in
// that order. It returns the marked text and the captured originals.
func Protect(text string) (string, []string) {
	var spans []string
	replace := func(match string) string {
		id := fmt.Sprintf("[PH%d]", len(spans))
		spans = append(spans, match)
		return id
	}

	text = reFencedCode.ReplaceAllStringFunc(text, replace)
	text = reInlineCode.ReplaceAllStringFunc(text, replace)
	text = reAddress.ReplaceAllStringFunc(text, replace)
	text = reURL.ReplaceAllStringFunc(text, replace)
	return text, spans
}

// Restore puts the spans captured by Protect back in place of their markers.
// Unknown indices are left as-is.
func Restore(text string, spans []string) string {
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx >= len(spans) {
			return match
		}
		return spans[idx]
	})
}

// Missing returns the indices of markers absent from text.
func Missing(text string, spans []string) []int {
	var missing []int
	for i := range spans {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}
