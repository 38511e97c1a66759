package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"iaicore/domain/audit"
	"iaicore/domain/core"
)

// RunSummary renders a markdown report over a run's audit history: one
// section per generation with its proposals, verdicts, and the invariant
// version in force. The audit log stays the source of truth; the report is
// a human-readable projection of it.
func RunSummary(runID core.RunID, records []audit.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Governance run %s\n\n", runID)

	if len(records) == 0 {
		b.WriteString("No generations logged.\n")
		return b.String()
	}

	final := records[len(records)-1]
	fmt.Fprintf(&b, "%d generations, final invariant version %d.\n\n",
		len(records), final.ResultingSet.Version)

	for _, rec := range records {
		b.WriteString(GenerationSummary(rec))
	}
	return b.String()
}

// GenerationSummary renders one generation's section.
func GenerationSummary(rec audit.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Generation %d\n\n", rec.Generation)
	fmt.Fprintf(&b, "- Active invariants: v%d\n", rec.ActiveVersion)
	fmt.Fprintf(&b, "- Evidence packages: %d\n", len(rec.EvidenceIDs))

	if rec.Failure != "" {
		fmt.Fprintf(&b, "- **Run terminated**: %s\n\n", rec.Failure)
		return b.String()
	}

	for i, p := range rec.Proposals {
		fmt.Fprintf(&b, "- Proposal `%s` (%s, risk %s)", p.ID, p.Type, p.Risk.Risk)
		if i < len(rec.Verdicts) {
			v := rec.Verdicts[i]
			fmt.Fprintf(&b, " → **%s** (confidence %.2f): %s", v.Decision, v.Confidence, v.Rationale)
		}
		b.WriteString("\n")
		for _, c := range p.Critiques {
			fmt.Fprintf(&b, "  - critique [%s] %s\n", c.Severity, c.Description)
		}
	}

	if rec.ResultingSet.Version != rec.ActiveVersion {
		fmt.Fprintf(&b, "- Invariants revised to v%d:\n", rec.ResultingSet.Version)
		for name, value := range rec.ResultingSet.Thresholds {
			fmt.Fprintf(&b, "  - %s = %.4f\n", name, value)
		}
	} else {
		b.WriteString("- Invariants held.\n")
	}
	b.WriteString("\n")
	return b.String()
}

// RenderHTML converts a markdown report to HTML for the inspection API.
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}
