package postprocess

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "plain code",
			input:    "contract A {}",
			expected: "contract A {}",
		},
		{
			name:     "thinking block",
			input:    "<thinking>Let me fix reentrancy</thinking>contract A {}",
			expected: "contract A {}",
		},
		{
			name:     "truncated reasoning",
			input:    "contract A {}\n<reasoning>cut off",
			expected: "contract A {}",
		},
		{
			name:     "preamble",
			input:    "Here is the fixed Solidity contract:\ncontract A {}",
			expected: "contract A {}",
		},
		{
			name:     "polite preamble",
			input:    "Sure, here's the complete code for you:\ncontract A {}",
			expected: "contract A {}",
		},
		{
			name:     "sure without colon is kept",
			input:    "Sure thing",
			expected: "Sure thing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		langs    []string
		expected string
	}{
		{
			name:     "no fences",
			input:    "contract A {}",
			langs:    []string{"solidity"},
			expected: "contract A {}",
		},
		{
			name:     "tagged fence",
			input:    "Intro\n```solidity\ncontract A {}\n```\nOutro",
			langs:    []string{"solidity", "sol"},
			expected: "contract A {}",
		},
		{
			name:     "prefers requested tag",
			input:    "```json\n{}\n```\n```python\nprint(1)\n```",
			langs:    []string{"python", "py"},
			expected: "print(1)",
		},
		{
			name:     "untagged fallback",
			input:    "```js\nx\n```\n```\ncontract B {}\n```",
			langs:    []string{"solidity"},
			expected: "contract B {}",
		},
		{
			name:     "first block when nothing matches",
			input:    "```js\nx()\n```",
			langs:    []string{"solidity"},
			expected: "x()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.input, tt.langs...); got != tt.expected {
				t.Errorf("ExtractCode = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "json fence",
			input:    "Report:\n```json\n{\"approved\": true}\n```",
			expected: `{"approved": true}`,
		},
		{
			name:     "bare object with chatter",
			input:    `The audit result is {"severity_level": "low"} as requested.`,
			expected: `{"severity_level": "low"}`,
		},
		{
			name:     "array",
			input:    `[{"type":"function"}]`,
			expected: `[{"type":"function"}]`,
		},
		{
			name:     "bracket in preamble",
			input:    "Audit [v1] complete. Report:\n{\"issues\": [\"x\"], \"approved\": false}",
			expected: `{"issues": ["x"], "approved": false}`,
		},
		{
			name:     "brace in prose before object",
			input:    "Set {x} first.\n{\"approved\": true} done",
			expected: `{"approved": true}`,
		},
		{
			name:    "no json",
			input:   "nothing to see",
			wantErr: true,
		},
		{
			name:    "unclosed",
			input:   "{ broken",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("expected ErrNoJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ExtractJSON = %q, want %q", got, tt.expected)
			}
		})
	}
}
