package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Kind is the element type a column was given at load time.
type Kind int

const (
	KindUnclassified Kind = iota
	KindNumeric
	KindCategorical
	KindTemporal
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindTemporal:
		return "datetime"
	default:
		return "unclassified"
	}
}

// ErrColumnNotFound is returned by column accessors for unknown names.
var ErrColumnNotFound = errors.New("column not found")

// Column pairs a column name with its load-time kind.
type Column struct {
	Name string
	Kind Kind
}

// Table is a loaded dataset. Kinds are decided once when the table is built
// and never change afterwards, including for samples taken with Head.
type Table struct {
	Name string

	df        dataframe.DataFrame
	names     []string
	kinds     []Kind
	index     map[string]int
	rows      int
	totalRows int
}

// nanValues are the cell spellings treated as missing on load.
var nanValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "<nil>"}

// FromRecords builds a Table from a header and rows of raw cells. Short rows are
// padded with missing cells; blank or duplicate header names are made unique.
func FromRecords(name string, header []string, rows [][]string) (*Table, error) {
	names := normalizeHeader(header)
	t := &Table{Name: name, names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		t.index[n] = i
	}
	t.kinds = make([]Kind, len(names))
	if len(names) == 0 || len(rows) == 0 {
		return t, nil
	}
	records := make([][]string, 0, len(rows)+1)
	records = append(records, names)
	for _, r := range rows {
		rec := make([]string, len(names))
		copy(rec, r)
		for j := range rec {
			rec[j] = strings.TrimSpace(rec[j])
		}
		records = append(records, rec)
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("build dataframe: %w", df.Err)
	}
	t.df = df
	t.rows = df.Nrow()
	t.totalRows = t.rows
	for i, n := range names {
		t.kinds[i] = inferKind(df.Col(n))
	}
	return t, nil
}

func inferKind(s series.Series) Kind {
	if s.Err != nil {
		return KindUnclassified
	}
	present := 0
	for i := 0; i < s.Len(); i++ {
		if !s.Elem(i).IsNA() {
			present++
		}
	}
	if present == 0 {
		return KindUnclassified
	}
	switch s.Type() {
	case series.Int, series.Float:
		return KindNumeric
	case series.String:
		for i := 0; i < s.Len(); i++ {
			e := s.Elem(i)
			if e.IsNA() {
				continue
			}
			if _, ok := MatchDateLayout(e.String()); !ok {
				return KindCategorical
			}
		}
		return KindTemporal
	default:
		return KindUnclassified
	}
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

// Rows is the number of rows in this table (after sampling).
func (t *Table) Rows() int { return t.rows }

// TotalRows is the number of rows that were loaded before any sampling.
func (t *Table) TotalRows() int { return t.totalRows }

// Cols is the number of columns.
func (t *Table) Cols() int { return len(t.names) }

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Columns returns every column with its kind, in table order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.names))
	for i, n := range t.names {
		out[i] = Column{Name: n, Kind: t.kinds[i]}
	}
	return out
}

// Kind reports the load-time kind of a column.
func (t *Table) Kind(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return KindUnclassified, false
	}
	return t.kinds[i], true
}

func (t *Table) series(name string) (series.Series, error) {
	if _, ok := t.index[name]; !ok {
		return series.Series{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	s := t.df.Col(name)
	if s.Err != nil {
		return series.Series{}, fmt.Errorf("column %q: %w", name, s.Err)
	}
	return s, nil
}

// Floats returns the column as float64 values with NaN for missing,
// non-numeric or infinite cells.
func (t *Table) Floats(name string) ([]float64, error) {
	if _, ok := t.index[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	if t.rows == 0 {
		return []float64{}, nil
	}
	s, err := t.series(name)
	if err != nil {
		return nil, err
	}
	if s.Type() == series.String || s.Type() == series.Bool {
		out := make([]float64, s.Len())
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}
	out := s.Float()
	for i, v := range out {
		if math.IsInf(v, 0) {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// Strings returns the column rendered as text plus a mask of missing cells.
// Missing cells are returned as "".
func (t *Table) Strings(name string) ([]string, []bool, error) {
	if _, ok := t.index[name]; !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	if t.rows == 0 {
		return []string{}, []bool{}, nil
	}
	s, err := t.series(name)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]string, s.Len())
	miss := make([]bool, s.Len())
	for i := range vals {
		e := s.Elem(i)
		if e.IsNA() {
			miss[i] = true
			continue
		}
		if s.Type() == series.Float {
			vals[i] = strconv.FormatFloat(e.Float(), 'g', -1, 64)
			continue
		}
		vals[i] = e.String()
	}
	return vals, miss, nil
}

// Missing returns the missing-cell mask of a column.
func (t *Table) Missing(name string) ([]bool, error) {
	_, miss, err := t.Strings(name)
	return miss, err
}

// MissingCells counts missing cells across the whole table.
func (t *Table) MissingCells() int {
	total := 0
	for _, n := range t.names {
		miss, err := t.Missing(n)
		if err != nil {
			continue
		}
		for _, m := range miss {
			if m {
				total++
			}
		}
	}
	return total
}

// Head returns a table holding the first n rows. Kinds are carried over from
// the full table. n <= 0 or n >= Rows returns t itself.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= t.rows {
		return t
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sub := t.df.Subset(idx)
	if sub.Err != nil {
		return t
	}
	return &Table{
		Name:      t.Name,
		df:        sub,
		names:     t.names,
		kinds:     t.kinds,
		index:     t.index,
		rows:      sub.Nrow(),
		totalRows: t.totalRows,
	}
}

// Preview returns up to n rows as display strings, missing cells empty.
func (t *Table) Preview(n int) [][]string {
	if n > t.rows {
		n = t.rows
	}
	if n <= 0 {
		return nil
	}
	out := make([][]string, n)
	for i := range out {
		out[i] = make([]string, len(t.names))
	}
	for j, name := range t.names {
		vals, _, err := t.Strings(name)
		if err != nil {
			continue
		}
		for i := 0; i < n; i++ {
			out[i][j] = vals[i]
		}
	}
	return out
}

// Info renders a per-column schema listing with non-null counts.
func (t *Table) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", t.Name)
	if t.rows > 0 {
		fmt.Fprintf(&b, "RangeIndex: %d entries, 0 to %d\n", t.rows, t.rows-1)
	} else {
		b.WriteString("RangeIndex: 0 entries\n")
	}
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", len(t.names))
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " #\tColumn\tNon-Null Count\tKind")
	fmt.Fprintln(tw, "---\t------\t--------------\t----")
	counts := map[Kind]int{}
	for i, name := range t.names {
		miss, _ := t.Missing(name)
		nn := 0
		for _, m := range miss {
			if !m {
				nn++
			}
		}
		counts[t.kinds[i]]++
		fmt.Fprintf(tw, " %d\t%s\t%d non-null\t%s\n", i, name, nn, t.kinds[i])
	}
	_ = tw.Flush()
	var parts []string
	for _, k := range []Kind{KindNumeric, KindCategorical, KindTemporal, KindUnclassified} {
		if counts[k] > 0 {
			parts = append(parts, fmt.Sprintf("%s(%d)", k, counts[k]))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "kinds: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
