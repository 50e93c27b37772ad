package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/KaramelBytes/edalens/internal/dataset"
)

// ErrNoValidDates is reported when no cell of the chosen column parses as a date.
var ErrNoValidDates = errors.New("no valid dates")

// Aggregation buckets a numeric series by the parsed date.
type Aggregation string

const (
	AggregateNone        Aggregation = "none"
	AggregateMonthlyMean Aggregation = "monthly-mean"
	AggregateMonthlySum  Aggregation = "monthly-sum"
)

// ParseAggregation accepts the aggregation spellings offered to users.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case "", AggregateNone:
		return AggregateNone, nil
	case AggregateMonthlyMean, "mean":
		return AggregateMonthlyMean, nil
	case AggregateMonthlySum, "sum":
		return AggregateMonthlySum, nil
	default:
		return "", fmt.Errorf("unsupported aggregation: %q (use none|monthly-mean|monthly-sum)", s)
	}
}

// ParseDate is the best-effort cell parser: fixed layouts first, then a
// format-guessing parser for anything that is not a bare number.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := dataset.MatchDateLayout(s); ok {
		return t, true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DatedRow points back at a table row together with its parsed date.
type DatedRow struct {
	Row  int       `json:"row"`
	Date time.Time `json:"date"`
}

// DateView is the derived, date-sorted view of a table. The table itself is
// left untouched; rows whose cell failed to parse are absent here only.
type DateView struct {
	Column  string     `json:"column"`
	Rows    []DatedRow `json:"rows"`
	Min     time.Time  `json:"min"`
	Max     time.Time  `json:"max"`
	Dropped int        `json:"dropped"`
}

// ParseDates parses every cell of column and returns the rows sorted by date.
// It returns ErrNoValidDates when nothing parses.
func ParseDates(t *dataset.Table, column string) (*DateView, error) {
	vals, miss, err := t.Strings(column)
	if err != nil {
		return nil, err
	}
	return parseDateCells(column, vals, miss)
}

func parseDateCells(column string, vals []string, miss []bool) (*DateView, error) {
	v := &DateView{Column: column}
	for i, s := range vals {
		if miss != nil && miss[i] {
			v.Dropped++
			continue
		}
		d, ok := ParseDate(s)
		if !ok {
			v.Dropped++
			continue
		}
		v.Rows = append(v.Rows, DatedRow{Row: i, Date: d})
	}
	if len(v.Rows) == 0 {
		return v, fmt.Errorf("column %q: %w", column, ErrNoValidDates)
	}
	sort.SliceStable(v.Rows, func(i, j int) bool { return v.Rows[i].Date.Before(v.Rows[j].Date) })
	v.Min = v.Rows[0].Date
	v.Max = v.Rows[len(v.Rows)-1].Date
	return v, nil
}

// Point is one value of a time series. Count is the number of rows behind it.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
}

// TimeSeries is a numeric column laid out along a parsed date column.
type TimeSeries struct {
	DateColumn  string      `json:"date_column"`
	Column      string      `json:"column"`
	Aggregation Aggregation `json:"aggregation"`
	Points      []Point     `json:"points"`
	Min         time.Time   `json:"min"`
	Max         time.Time   `json:"max"`
	Dropped     int         `json:"dropped"`
}

// Aggregate lays the numeric column out along the view. With AggregateNone
// every row becomes a point in date order; the monthly modes bucket by
// calendar month, labelled by the first day of the month. Rows with a
// missing numeric value are skipped; months without values are not emitted.
func Aggregate(view *DateView, t *dataset.Table, column string, mode Aggregation) (*TimeSeries, error) {
	vals, err := t.Floats(column)
	if err != nil {
		return nil, err
	}
	return aggregateValues(view, column, vals, mode)
}

func aggregateValues(view *DateView, column string, vals []float64, mode Aggregation) (*TimeSeries, error) {
	if view == nil {
		return nil, errors.New("nil date view")
	}
	ts := &TimeSeries{
		DateColumn:  view.Column,
		Column:      column,
		Aggregation: mode,
		Points:      []Point{},
		Min:         view.Min,
		Max:         view.Max,
		Dropped:     view.Dropped,
	}
	switch mode {
	case "", AggregateNone:
		ts.Aggregation = AggregateNone
		for _, r := range view.Rows {
			x := vals[r.Row]
			if math.IsNaN(x) {
				continue
			}
			ts.Points = append(ts.Points, Point{Date: r.Date, Value: x, Count: 1})
		}
	case AggregateMonthlyMean, AggregateMonthlySum:
		var cur *Point
		for _, r := range view.Rows {
			x := vals[r.Row]
			if math.IsNaN(x) {
				continue
			}
			d := r.Date.UTC()
			month := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
			if cur == nil || !cur.Date.Equal(month) {
				ts.Points = append(ts.Points, Point{Date: month})
				cur = &ts.Points[len(ts.Points)-1]
			}
			cur.Value += x
			cur.Count++
		}
		if mode == AggregateMonthlyMean {
			for i := range ts.Points {
				ts.Points[i].Value /= float64(ts.Points[i].Count)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported aggregation: %q", mode)
	}
	return ts, nil
}
