package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cuties-app/cuties/pkg/importer"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

func printImportSummary(w io.Writer, s importer.Summary) {
	fmt.Fprintln(w)
	if s.DryRun {
		fmt.Fprintln(w, "Dry run complete (nothing written).")
	} else {
		fmt.Fprintln(w, "Migration complete!")
	}
	fmt.Fprintf(w, "  Table:      %s\n", s.Table)
	fmt.Fprintf(w, "  Total:      %d\n", s.Total)
	fmt.Fprintf(w, "  Matched:    %d\n", s.Matched)
	fmt.Fprintf(w, "  Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "  Unmatched:  %d\n", s.Unmatched)
	fmt.Fprintf(w, "  Inserted:   %d\n", s.Inserted)
	if !s.DryRun && !s.Cleared {
		fmt.Fprintln(w, "  Warning: existing rows were NOT cleared")
	}
	if len(s.FailedBatches) > 0 {
		parts := make([]string, len(s.FailedBatches))
		for i, b := range s.FailedBatches {
			parts[i] = fmt.Sprint(b)
		}
		fmt.Fprintf(w, "  Failed batches: %s\n", strings.Join(parts, ", "))
	}
}

func printUnmatched(w io.Writer, items []importer.Unmatched) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, "\nUnmatched records:")
	for _, u := range items {
		fmt.Fprintf(w, "  - line %d: %s: subject %q by %q", u.Line, u.Reason, u.Subject, u.Author)
		if len(u.Suggestions) > 0 {
			fmt.Fprintf(w, " (did you mean: %s?)", strings.Join(u.Suggestions, ", "))
		}
		fmt.Fprintln(w)
	}
}
