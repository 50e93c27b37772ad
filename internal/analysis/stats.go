package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/edalens/internal/dataset"
)

// CategoryCount is one row of a value-count table.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Frequency is the value-count table of one column.
type Frequency struct {
	Column string          `json:"column"`
	Counts []CategoryCount `json:"counts"`
	// Unique is the number of distinct non-missing values, before truncation.
	Unique  int `json:"unique"`
	NonNull int `json:"non_null"`
}

// ValueCounts counts the non-missing values of column, most frequent first;
// ties break on the value. topN <= 0 keeps every value.
func ValueCounts(t *dataset.Table, column string, topN int) (*Frequency, error) {
	vals, miss, err := t.Strings(column)
	if err != nil {
		return nil, err
	}
	return valueCounts(column, vals, miss, topN), nil
}

func valueCounts(column string, vals []string, miss []bool, topN int) *Frequency {
	counts := map[string]int{}
	nonNull := 0
	for i, v := range vals {
		if miss != nil && miss[i] {
			continue
		}
		counts[v]++
		nonNull++
	}
	out := make([]CategoryCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, CategoryCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	f := &Frequency{Column: column, Unique: len(out), NonNull: nonNull}
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	f.Counts = out
	return f
}

// Bin is a half-open interval [Lo, Hi); the last bin of a histogram also
// includes Hi.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram bins the non-missing values of a numeric column.
type Histogram struct {
	Column string `json:"column"`
	Bins   []Bin  `json:"bins"`
	Count  int    `json:"count"`
}

// NewHistogram splits the value range into bins equal-width intervals. A
// constant column is centred in a unit-wide range.
func NewHistogram(t *dataset.Table, column string, bins int) (*Histogram, error) {
	vals, err := t.Floats(column)
	if err != nil {
		return nil, err
	}
	return histogram(column, present(vals), bins), nil
}

func histogram(column string, vals []float64, bins int) *Histogram {
	if bins <= 0 {
		bins = 30
	}
	h := &Histogram{Column: column, Bins: []Bin{}, Count: len(vals)}
	if len(vals) == 0 {
		return h
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	width := (hi - lo) / float64(bins)
	h.Bins = make([]Bin, bins)
	for i := range h.Bins {
		h.Bins[i].Lo = lo + float64(i)*width
		h.Bins[i].Hi = lo + float64(i+1)*width
	}
	h.Bins[bins-1].Hi = hi
	for _, v := range vals {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		h.Bins[i].Count++
	}
	return h
}

// BoxStats is the five-number summary with Tukey whiskers at 1.5 IQR.
type BoxStats struct {
	Column       string    `json:"column"`
	Count        int       `json:"count"`
	Min          float64   `json:"min"`
	Q1           float64   `json:"q1"`
	Median       float64   `json:"median"`
	Q3           float64   `json:"q3"`
	Max          float64   `json:"max"`
	LowerWhisker float64   `json:"lower_whisker"`
	UpperWhisker float64   `json:"upper_whisker"`
	Outliers     []float64 `json:"outliers"`
}

// NewBoxStats summarizes a numeric column for a box plot.
func NewBoxStats(t *dataset.Table, column string) (*BoxStats, error) {
	vals, err := t.Floats(column)
	if err != nil {
		return nil, err
	}
	return boxStats(column, present(vals)), nil
}

func boxStats(column string, vals []float64) *BoxStats {
	b := &BoxStats{Column: column, Count: len(vals), Outliers: []float64{}}
	if len(vals) == 0 {
		return b
	}
	s := sortedCopy(vals)
	b.Min, b.Max = s[0], s[len(s)-1]
	b.Q1 = quantile(s, 0.25)
	b.Median = quantile(s, 0.5)
	b.Q3 = quantile(s, 0.75)
	iqr := b.Q3 - b.Q1
	loFence, hiFence := b.Q1-1.5*iqr, b.Q3+1.5*iqr
	b.LowerWhisker, b.UpperWhisker = b.Max, b.Min
	for _, v := range s {
		if v < loFence || v > hiFence {
			b.Outliers = append(b.Outliers, v)
			continue
		}
		b.LowerWhisker = math.Min(b.LowerWhisker, v)
		b.UpperWhisker = math.Max(b.UpperWhisker, v)
	}
	return b
}

// NumSummary is the describe() row of a numeric column.
type NumSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
	// Outliers counts values with a robust z-score (MAD based) above 3.5.
	Outliers int `json:"outliers"`
}

// Describe summarizes every numeric column of t in table order.
func Describe(t *dataset.Table, columns []string) ([]NumSummary, error) {
	out := make([]NumSummary, 0, len(columns))
	for _, c := range columns {
		vals, err := t.Floats(c)
		if err != nil {
			return nil, err
		}
		out = append(out, describe(c, present(vals)))
	}
	return out, nil
}

func describe(column string, vals []float64) NumSummary {
	s := NumSummary{Column: column, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	sorted := sortedCopy(vals)
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	if len(vals) < 2 || math.IsNaN(s.Std) {
		s.Std = 0
	}
	s.Min, s.Max = sorted[0], sorted[len(sorted)-1]
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q75 = quantile(sorted, 0.75)
	med, mad := medianMAD(vals)
	if mad > 0 {
		for _, v := range vals {
			if math.Abs(0.6745*(v-med)/mad) > 3.5 {
				s.Outliers++
			}
		}
	}
	return s
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// Correlation computes pairwise Pearson correlations over rows where both
// values are present. Undefined coefficients (constant input, fewer than two
// pairs) are reported as 0.
func Correlation(t *dataset.Table, columns []string) (*CorrMatrix, error) {
	series := make([][]float64, len(columns))
	for i, c := range columns {
		v, err := t.Floats(c)
		if err != nil {
			return nil, err
		}
		series[i] = v
	}
	return correlation(columns, series), nil
}

func correlation(columns []string, series [][]float64) *CorrMatrix {
	n := len(columns)
	m := &CorrMatrix{Columns: append([]string(nil), columns...), Values: make([][]float64, n)}
	for i := range m.Values {
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			x, y := pairwise(series[i], series[j])
			r := 0.0
			if len(x) >= 2 {
				r = stat.Correlation(x, y, nil)
				if math.IsNaN(r) || math.IsInf(r, 0) {
					r = 0
				}
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

// TopPairs lists the off-diagonal pairs by descending |r|.
func (m *CorrMatrix) TopPairs(limit int) []PairCorr {
	var pairs []PairCorr
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// ScatterPoint is one plotted row. Group is empty without a color-by column.
type ScatterPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Group string  `json:"group,omitempty"`
}

// Scatter pairs two numeric columns.
type Scatter struct {
	X       string         `json:"x"`
	Y       string         `json:"y"`
	ColorBy string         `json:"color_by,omitempty"`
	Points  []ScatterPoint `json:"points"`
	Groups  []string       `json:"groups,omitempty"`
}

// NewScatter collects rows where both x and y are present. When colorBy is
// set, each point carries that column's value; missing values group as "NA".
func NewScatter(t *dataset.Table, x, y, colorBy string) (*Scatter, error) {
	xs, err := t.Floats(x)
	if err != nil {
		return nil, err
	}
	ys, err := t.Floats(y)
	if err != nil {
		return nil, err
	}
	var groups []string
	var gmiss []bool
	if colorBy != "" {
		if groups, gmiss, err = t.Strings(colorBy); err != nil {
			return nil, err
		}
	}
	s := &Scatter{X: x, Y: y, ColorBy: colorBy, Points: []ScatterPoint{}}
	seen := map[string]bool{}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		p := ScatterPoint{X: xs[i], Y: ys[i]}
		if groups != nil {
			p.Group = groups[i]
			if gmiss[i] {
				p.Group = "NA"
			}
			if !seen[p.Group] {
				seen[p.Group] = true
				s.Groups = append(s.Groups, p.Group)
			}
		}
		s.Points = append(s.Points, p)
	}
	sort.Strings(s.Groups)
	return s, nil
}

// MissingMap is the missing-value mask of a table plus per-column totals.
type MissingMap struct {
	Columns []string  `json:"columns"`
	Counts  []int     `json:"counts"`
	Percent []float64 `json:"percent"`
	Rows    int       `json:"rows"`
	// Mask holds the first rows of the table; true marks a missing cell.
	Mask [][]bool `json:"mask"`
}

// NewMissingMap computes per-column missing totals over every row and keeps
// the mask of at most maxRows rows for display.
func NewMissingMap(t *dataset.Table, maxRows int) (*MissingMap, error) {
	names := t.Names()
	rows := t.Rows()
	shown := rows
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}
	m := &MissingMap{
		Columns: names,
		Counts:  make([]int, len(names)),
		Percent: make([]float64, len(names)),
		Rows:    rows,
		Mask:    make([][]bool, shown),
	}
	for r := range m.Mask {
		m.Mask[r] = make([]bool, len(names))
	}
	for j, c := range names {
		miss, err := t.Missing(c)
		if err != nil {
			return nil, fmt.Errorf("missing map: %w", err)
		}
		for r, isNA := range miss {
			if !isNA {
				continue
			}
			m.Counts[j]++
			if r < shown {
				m.Mask[r][j] = true
			}
		}
		if rows > 0 {
			m.Percent[j] = float64(m.Counts[j]) * 100 / float64(rows)
		}
	}
	return m, nil
}

func present(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

func pairwise(a, b []float64) (x, y []float64) {
	for i := range a {
		if i >= len(b) || !finite(a[i]) || !finite(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	return x, y
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func sortedCopy(vals []float64) []float64 {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return cp
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := sortedCopy(vals)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between closest ranks (pandas default).
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
