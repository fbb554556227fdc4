// Package postprocess removes common LLM artifacts from stage output and pulls
// the payload (Solidity, Python, JSON) out of chatty replies.
//
// It is applied to the raw text returned by every backend before a stage result
// is used downstream.
package postprocess

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by ExtractJSON when the text holds no JSON object or array.
var ErrNoJSON = errors.New("postprocess: no JSON found in response")

// Clean removes LLM artifacts from text in two phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Preamble echo removal ("Here is the fixed contract:")
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removePreamble(text)
	return strings.TrimSpace(text)
}

// --- thinking blocks ---

// Each tag variant is listed explicitly because RE2 has no backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opened thinking tag whose closing tag is missing (the model was cut off).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- preamble ---

// Anchored to the start and require a trailing colon to avoid eating code.
var preambleRe = regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course)[,.!]?\s*)?here(?:'s| is| are)(?: the)? (?:complete |fixed |corrected |refined |updated |generated )?(?:solidity |python |json )?(?:smart contract|contract|code|abi|server|mcp server|audit report|report|result)[^:\n]*:`)

func removePreamble(text string) string {
	if loc := preambleRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[1]:])
	}
	return text
}

// fencedBlockRe captures the language tag and body of a ``` fenced block.
var fencedBlockRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)```")

// ExtractCode returns the body of the first fenced block tagged with one of
// langs (case-insensitive). When no tagged block exists the first untagged
// block is used, and when there are no fences at all the cleaned text is
// returned unchanged.
func ExtractCode(text string, langs ...string) string {
	text = Clean(text)
	matches := fencedBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text
	}
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		for _, l := range langs {
			if tag == strings.ToLower(l) {
				return strings.TrimSpace(m[2])
			}
		}
	}
	for _, m := range matches {
		if m[1] == "" {
			return strings.TrimSpace(m[2])
		}
	}
	return strings.TrimSpace(matches[0][2])
}

// ExtractJSON returns the first JSON object or array found in text: a ```json
// fence wins, otherwise the first '{' or '[' from which a complete JSON value
// decodes. Brackets in surrounding prose are skipped.
func ExtractJSON(text string) (string, error) {
	text = Clean(text)
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[1], "json") {
			return strings.TrimSpace(m[2]), nil
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
	}
	return "", ErrNoJSON
}
