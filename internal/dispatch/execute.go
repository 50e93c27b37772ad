package dispatch

import (
	"fmt"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dataset"
)

// Result is the data computed for one operation. Exactly one payload field
// is set, matching Op.Kind.
type Result struct {
	Op         Operation             `json:"op"`
	Frequency  *analysis.Frequency   `json:"frequency,omitempty"`
	Histogram  *analysis.Histogram   `json:"histogram,omitempty"`
	Box        *analysis.BoxStats    `json:"box,omitempty"`
	Describe   []analysis.NumSummary `json:"describe,omitempty"`
	Corr       *analysis.CorrMatrix  `json:"correlation,omitempty"`
	Scatter    *analysis.Scatter     `json:"scatter,omitempty"`
	Series     *analysis.TimeSeries  `json:"series,omitempty"`
	MissingMap *analysis.MissingMap  `json:"missing_map,omitempty"`
}

// Execute computes the data behind op. A time series over a column without a
// single parseable date returns an error matching analysis.ErrNoValidDates.
func Execute(op Operation, t *dataset.Table) (*Result, error) {
	p := op.Params
	res := &Result{Op: op}
	var err error
	switch op.Kind {
	case KindBar:
		res.Frequency, err = analysis.ValueCounts(t, p.Column, p.TopN)
	case KindPie:
		res.Frequency, err = analysis.ValueCounts(t, p.Column, 0)
	case KindHistogram:
		res.Histogram, err = analysis.NewHistogram(t, p.Column, p.Bins)
	case KindBox:
		res.Box, err = analysis.NewBoxStats(t, p.Column)
	case KindDescribe:
		res.Describe, err = analysis.Describe(t, p.Columns)
	case KindCorrelation:
		res.Corr, err = analysis.Correlation(t, p.Columns)
	case KindScatter:
		res.Scatter, err = analysis.NewScatter(t, p.Column, p.Y, p.ColorBy)
	case KindMissingMap:
		res.MissingMap, err = analysis.NewMissingMap(t, p.MaxRows)
	case KindTimeSeries:
		var view *analysis.DateView
		view, err = analysis.ParseDates(t, p.DateColumn)
		if err == nil {
			res.Series, err = analysis.Aggregate(view, t, p.Column, p.Aggregation)
		}
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Kind, err)
	}
	return res, nil
}
