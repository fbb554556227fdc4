// Package report renders a translation result as Markdown or HTML.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/valpere/sctran/internal/audit"
	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/pipeline"
)

// Markdown renders res as a self-contained Markdown document.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder

	title := "Smart Contract Translation"
	if res.Contract != nil && res.Contract.Title != "" {
		title = res.Contract.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- **Source language:** %s\n", res.SourceLanguage)
	fmt.Fprintf(&b, "- **Refinement iterations:** %d\n", res.Iterations)
	fmt.Fprintf(&b, "- **Final severity:** %s (approved: %t)\n", strings.ToUpper(string(res.Audit.SeverityLevel)), res.Audit.Approved)
	if res.Compilation != nil {
		fmt.Fprintf(&b, "- **Compilation:** %s\n", compiler.Summary(*res.Compilation))
	}
	if res.Cached {
		b.WriteString("- **Served from history**\n")
	}
	fmt.Fprintf(&b, "- **Duration:** %s\n\n", res.Duration())

	if c := res.Contract; c != nil {
		b.WriteString("## Contract\n\n")
		if c.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", c.Summary)
		}
		fmt.Fprintf(&b, "Type: %s\n\n", c.ContractType)
		if len(c.Parties) > 0 {
			b.WriteString("| Party | Role |\n|---|---|\n")
			for _, p := range c.Parties {
				fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(p.Name), p.Role)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Solidity\n\n```solidity\n")
	b.WriteString(strings.TrimRight(res.SolidityCode, "\n"))
	b.WriteString("\n```\n\n")

	b.WriteString("## Security audit\n\n")
	for i, r := range res.AuditHistory {
		writeAudit(&b, i, r)
	}

	if res.Compilation != nil && len(res.Compilation.Warnings) > 0 {
		b.WriteString("## Compiler warnings\n\n")
		for _, w := range res.Compilation.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if q := res.Quality; q != nil {
		b.WriteString("## Quality\n\n| Dimension | Score |\n|---|---|\n")
		fmt.Fprintf(&b, "| Functional completeness | %.1f |\n", q.FunctionalCompleteness)
		fmt.Fprintf(&b, "| State machine fidelity | %.1f |\n", q.StateMachineFidelity)
		fmt.Fprintf(&b, "| Security | %.1f |\n", q.Security)
		fmt.Fprintf(&b, "| Code quality | %.1f |\n", q.CodeQuality)
		fmt.Fprintf(&b, "| **Overall** | **%.1f** |\n\n", q.Overall)
		for _, f := range q.MissingFeatures {
			fmt.Fprintf(&b, "- Missing: %s\n", f)
		}
		if q.Notes != "" {
			fmt.Fprintf(&b, "\n%s\n", q.Notes)
		}
		b.WriteString("\n")
	}

	b.WriteString("## ABI\n\n```json\n")
	b.WriteString(indentJSON(res.ABI))
	b.WriteString("\n```\n\n")

	b.WriteString("## MCP server\n\n```python\n")
	b.WriteString(strings.TrimRight(res.MCPServer, "\n"))
	b.WriteString("\n```\n")

	return b.String()
}

func writeAudit(b *strings.Builder, pass int, r audit.Report) {
	label := "Initial audit"
	if pass > 0 {
		label = fmt.Sprintf("After refinement %d", pass)
	}
	fmt.Fprintf(b, "### %s: %s\n\n", label, strings.ToUpper(string(r.SeverityLevel)))
	if len(r.Issues) == 0 {
		b.WriteString("No issues reported.\n\n")
	} else {
		for _, issue := range r.Issues {
			fmt.Fprintf(b, "- %s\n", issue)
		}
		b.WriteString("\n")
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("Recommendations:\n\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// HTML renders res as an HTML fragment.
func HTML(res *pipeline.Result) string {
	return ToHTML([]byte(Markdown(res)))
}

func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}
