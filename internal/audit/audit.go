// Package audit models the security auditor's verdict and the decision that
// gates the audit/refine loop.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valpere/sctran/internal/postprocess"
)

// DefaultMaxIterations bounds the refinement loop when no limit is configured.
const DefaultMaxIterations = 2

// Severity is the ordinal audit classification.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	SeverityUnknown  Severity = "unknown"
)

// ParseSeverity maps free text onto a Severity; anything unrecognised is unknown.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev
	default:
		return SeverityUnknown
	}
}

// RequiresFix reports whether findings at this level are worth another pass.
// none, low and unknown are tolerated.
func (s Severity) RequiresFix() bool {
	switch ParseSeverity(string(s)) {
	case SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Report is one auditor pass over a contract. It is not modified after it is
// produced; each refinement pass yields a new Report.
type Report struct {
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	SeverityLevel   Severity `json:"severity_level"`
	Approved        bool     `json:"approved"`
}

// ShouldRefine decides whether the refiner runs again. It never allows a pass
// once count has reached maxIterations, and otherwise requires an unapproved
// report at medium severity or above.
func ShouldRefine(report Report, count, maxIterations int) bool {
	if count >= maxIterations {
		return false
	}
	return !report.Approved && report.SeverityLevel.RequiresFix()
}

// ParseReport decodes the auditor's reply. The JSON may be fenced or embedded
// in prose; "severity" is accepted as an alias of "severity_level".
//
// When no usable JSON is present the returned report is unapproved with
// unknown severity and carries the raw reply as its only issue, alongside a
// non-nil error.
func ParseReport(text string) (Report, error) {
	fallback := Report{
		Issues:        []string{strings.TrimSpace(text)},
		SeverityLevel: SeverityUnknown,
	}

	raw, err := postprocess.ExtractJSON(text)
	if err != nil {
		return fallback, fmt.Errorf("failed to parse audit report: %w", err)
	}

	var parsed struct {
		Issues          []string `json:"issues"`
		Vulnerabilities []string `json:"vulnerabilities"`
		Recommendations []string `json:"recommendations"`
		SeverityLevel   string   `json:"severity_level"`
		Severity        string   `json:"severity"`
		Approved        bool     `json:"approved"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fallback, fmt.Errorf("failed to parse audit report as JSON: %w", err)
	}

	sev := parsed.SeverityLevel
	if sev == "" {
		sev = parsed.Severity
	}
	issues := parsed.Issues
	if len(issues) == 0 {
		issues = parsed.Vulnerabilities
	}

	return Report{
		Issues:          nonNil(issues),
		Recommendations: nonNil(parsed.Recommendations),
		SeverityLevel:   ParseSeverity(sev),
		Approved:        parsed.Approved,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
