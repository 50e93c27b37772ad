package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/edalens/internal/dataset"
)

// ReportOptions controls what goes into a Report.
type ReportOptions struct {
	// SampleRows is the number of leading rows quoted in the report.
	SampleRows int
	// TopValues limits the value counts listed per categorical column.
	TopValues int
	// Correlations adds the top correlation pairs among numeric columns.
	Correlations bool
}

// DefaultReportOptions returns the settings used for insight prompts.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{SampleRows: 5, TopValues: 8, Correlations: true}
}

// Report is a markdown-friendly summary of a loaded table.
type Report struct {
	Name      string
	Rows      int
	TotalRows int
	Cols      []ColumnSummary
	Classes   Classes
	Samples   [][]string
	Warnings  []string
	Corr      *CorrMatrix
}

// ColumnSummary captures the kind and statistics of one column.
type ColumnSummary struct {
	Name    string
	Kind    string
	NonNull int
	Missing int
	Unique  int
	// set for numeric columns
	Stats *NumSummary
	// set for categorical columns
	TopValues []CategoryCount
}

// BuildReport summarizes t for prompts and standalone docs.
func BuildReport(t *dataset.Table, opt ReportOptions) (*Report, error) {
	r := &Report{
		Name:      t.Name,
		Rows:      t.Rows(),
		TotalRows: t.TotalRows(),
		Classes:   Classify(t),
		Samples:   t.Preview(opt.SampleRows),
	}
	for _, col := range t.Columns() {
		vals, miss, err := t.Strings(col.Name)
		if err != nil {
			return nil, err
		}
		freq := valueCounts(col.Name, vals, miss, opt.TopValues)
		cs := ColumnSummary{
			Name:    col.Name,
			Kind:    col.Kind.String(),
			NonNull: freq.NonNull,
			Missing: len(vals) - freq.NonNull,
			Unique:  freq.Unique,
		}
		switch col.Kind {
		case dataset.KindNumeric:
			f, err := t.Floats(col.Name)
			if err != nil {
				return nil, err
			}
			s := describe(col.Name, present(f))
			cs.Stats = &s
			if s.Outliers > 0 {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s has %d robust outliers (|z|>3.5)", col.Name, s.Outliers))
			}
		case dataset.KindCategorical:
			cs.TopValues = freq.Counts
		case dataset.KindUnclassified:
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s is neither numeric nor categorical and is left out of charts", col.Name))
		}
		if cs.NonNull == 0 && len(vals) > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s is entirely missing", col.Name))
		}
		r.Cols = append(r.Cols, cs)
	}
	if r.Rows < r.TotalRows {
		r.Warnings = append(r.Warnings, fmt.Sprintf("analysis limited to the first %d of %d rows", r.Rows, r.TotalRows))
	}
	if opt.Correlations && len(r.Classes.Numeric) >= 2 {
		m, err := Correlation(t, r.Classes.Numeric)
		if err != nil {
			return nil, err
		}
		r.Corr = m
	}
	return r, nil
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	if r.TotalRows > r.Rows {
		fmt.Fprintf(&b, "Rows: %d (sampled %d)\n", r.TotalRows, r.Rows)
	} else {
		fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	}
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[COLUMN CLASSES]\n")
	fmt.Fprintf(&b, "- numeric: %s\n", listOrNone(r.Classes.Numeric))
	fmt.Fprintf(&b, "- categorical: %s\n", listOrNone(r.Classes.Categorical))
	fmt.Fprintf(&b, "- date candidates: %s\n\n", listOrNone(r.Classes.DateCandidates))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		if s := c.Stats; s != nil && s.Count > 0 {
			fmt.Fprintf(&b, ": min %.4g, median %.4g, max %.4g, mean %.4g, std %.4g", s.Min, s.Median, s.Max, s.Mean, s.Std)
		}
		if len(c.TopValues) > 0 {
			b.WriteString(": top ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.TopValues) {
				fmt.Fprintf(&b, "; unique=%d", c.Unique)
			}
		}
		b.WriteString("\n")
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Corr.TopPairs(10) {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if r := []rune(val); len(r) > 80 {
					val = string(r[:77]) + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func listOrNone(v []string) string {
	if len(v) == 0 {
		return "(none)"
	}
	return strings.Join(v, ", ")
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
