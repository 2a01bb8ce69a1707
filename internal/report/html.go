// Package report renders a per-run HTML report.
package report

import (
	"fmt"
	"html"
	"os"
	"time"

	"photocopy/internal/executor"
	"photocopy/internal/plan"
)

// Write generates an HTML report for one run: summary statistics,
// validation skips, errors and the unknown-files tally.
func Write(path string, p *plan.CopyPlan, res *executor.Result, elapsed time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	f.WriteString("<html><head><title>photocopy report</title></head><body>")
	f.WriteString("<h1>photocopy Report</h1>")

	f.WriteString("<h2>Summary</h2><ul>")
	f.WriteString(fmt.Sprintf("<li>Files processed: %d</li>", res.Processed))
	f.WriteString(fmt.Sprintf("<li>Resumed (already complete): %d</li>", res.Skipped))
	f.WriteString(fmt.Sprintf("<li>Failed: %d</li>", res.Failed))
	f.WriteString(fmt.Sprintf("<li>Skipped by validation: %d</li>", len(p.Skipped)))
	f.WriteString(fmt.Sprintf("<li>Bytes processed: %.2f MB</li>", float64(res.BytesProcessed)/(1024*1024)))
	f.WriteString(fmt.Sprintf("<li>Total time taken: %s</li>", elapsed.Round(time.Millisecond)))
	if res.DryRun {
		f.WriteString("<li><b>Dry run:</b> no files were written</li>")
	}
	f.WriteString("</ul>")

	if len(p.Skipped) > 0 {
		f.WriteString("<h2>Skipped Files</h2><ul>")
		for _, s := range p.Skipped {
			f.WriteString(fmt.Sprintf("<li><a href=\"file://%s\">%s</a> — %s</li>",
				html.EscapeString(s.Path), html.EscapeString(s.Path), html.EscapeString(s.Reason)))
		}
		f.WriteString("</ul>")
	}

	if len(res.Errors) > 0 {
		f.WriteString("<h2>Errors</h2><ul>")
		for _, e := range res.Errors {
			f.WriteString(fmt.Sprintf("<li>%s → %s: %s</li>",
				html.EscapeString(e.FilePath), html.EscapeString(e.DestinationPath), html.EscapeString(e.Message)))
		}
		f.WriteString("</ul>")
	}

	if len(res.Unknown) > 0 {
		f.WriteString("<h2>Files Without Metadata</h2><ul>")
		for reason, count := range res.Unknown {
			f.WriteString(fmt.Sprintf("<li>%s: %d</li>", html.EscapeString(reason), count))
		}
		f.WriteString("</ul>")
	}

	f.WriteString("</body></html>")
	return nil
}
