package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/use-agent/uicheck/models"
)

// PrettyRenderer renders a report in a human-friendly format: one line per
// scenario, then the failing and skipped steps, then a summary line.
type PrettyRenderer struct {
	out     io.Writer
	verbose bool
}

// NewPretty creates a PrettyRenderer writing to the provided writer. In
// verbose mode every step is listed, not only the failing ones.
func NewPretty(out io.Writer, verbose bool) *PrettyRenderer {
	return &PrettyRenderer{out: out, verbose: verbose}
}

// Render writes the report.
func (p *PrettyRenderer) Render(rep models.Report) error {
	var buf bytes.Buffer
	for _, sc := range rep.Scenarios {
		passed, _, _ := sc.Counts()
		fmt.Fprintf(&buf, "%s %s (%s) %d/%d steps\n",
			statusGlyph(string(sc.Status)), sc.Scenario, formatDuration(sc.Duration), passed, len(sc.Steps))

		for _, st := range sc.Steps {
			if !p.verbose && st.Status == models.StatusPassed {
				continue
			}
			p.renderStep(&buf, st)
		}
		for _, a := range sc.Artifacts {
			fmt.Fprintf(&buf, "    artifact: %s\n", a)
		}
	}
	if _, err := buf.WriteTo(p.out); err != nil {
		return err
	}

	s := rep.Summary
	_, err := fmt.Fprintf(p.out, "SUMMARY: %d/%d scenarios passed; steps: %d passed, %d failed, %d skipped (%s)\n",
		s.PassedScenarios, s.TotalScenarios, s.Passed, s.Failed, s.Skipped, formatDuration(s.Duration))
	return err
}

func (p *PrettyRenderer) renderStep(buf *bytes.Buffer, st models.StepOutcome) {
	label := st.Step.Description
	if st.Step.Name != "" {
		label = st.Step.Name
	}
	if !st.Step.Critical {
		label += " [soft]"
	}

	switch st.Status {
	case models.StatusSkipped:
		fmt.Fprintf(buf, "    %s %d. %s\n", statusGlyph(string(st.Status)), st.Step.Index+1, label)
		if st.Reason != "" {
			fmt.Fprintf(buf, "      note: %s\n", st.Reason)
		}
		return
	default:
		fmt.Fprintf(buf, "    %s %d. %s (%s)\n", statusGlyph(string(st.Status)), st.Step.Index+1, label, formatDuration(st.Duration))
	}

	e := st.Error
	if e == nil {
		return
	}
	fmt.Fprintf(buf, "      %s: %s\n", e.Code, indent(e.Message, "      "))
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(buf, "      expected: %s\n", e.Expected)
		fmt.Fprintf(buf, "      actual:   %s\n", e.Actual)
	}
	if e.LastState != "" && e.LastState != e.Actual {
		fmt.Fprintf(buf, "      last state: %s\n", e.LastState)
	}
	if e.Cause != "" {
		fmt.Fprintf(buf, "      cause: %s\n", indent(e.Cause, "      "))
	}
}

func statusGlyph(status string) string {
	switch status {
	case "passed":
		return "✓"
	case "failed":
		return "✗"
	case "skipped":
		return "-"
	default:
		return "?"
	}
}

// indent pads continuation lines of a multi-line message.
func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\n", "\n"+pad)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
