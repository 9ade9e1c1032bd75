package ingest

import (
	"fmt"
	"io"
	"strings"
)

// FolderResult is the outcome of processing one folder.
type FolderResult struct {
	Folder   string
	Tally    Tally
	Outcomes []Outcome
}

// RunReport aggregates a whole run.
type RunReport struct {
	RunID       string
	Folders     []FolderResult
	Total       Tally
	Interrupted bool
	Fault       error
}

// Add appends a folder's result and folds its counters into the total.
func (r *RunReport) Add(result FolderResult) {
	r.Folders = append(r.Folders, result)
	r.Total.Add(result.Tally)
}

// WriteSummary prints the aggregated counts.
func (r RunReport) WriteSummary(w io.Writer) error {
	rule := strings.Repeat("=", 50)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	switch {
	case r.Fault != nil:
		fmt.Fprintf(&b, "Stopped by unexpected error: %v\n", r.Fault)
	case r.Interrupted:
		fmt.Fprintln(&b, "Interrupted")
	default:
		fmt.Fprintln(&b, "Done")
	}
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run:     %s\n", r.RunID)
	}
	fmt.Fprintln(&b, rule)
	for _, f := range r.Folders {
		fmt.Fprintf(&b, "  folder %-10s success=%d failed=%d skipped=%d\n", f.Folder, f.Tally.Success, f.Tally.Failed, f.Tally.Skipped)
	}
	fmt.Fprintf(&b, "Success: %d\n", r.Total.Success)
	fmt.Fprintf(&b, "Failed:  %d\n", r.Total.Failed)
	fmt.Fprintf(&b, "Skipped: %d\n", r.Total.Skipped)

	_, err := io.WriteString(w, b.String())
	return err
}
