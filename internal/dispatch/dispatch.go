// Package dispatch maps an analysis mode and the column classes of a table
// onto the chart operations that can be produced for it.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/edalens/internal/analysis"
)

// Mode is a user-selectable analysis tab.
type Mode string

const (
	ModeOverview      Mode = "overview"
	ModeCategorical   Mode = "categorical-overview"
	ModeNumeric       Mode = "numeric-overview"
	ModeRelationships Mode = "relationships"
	ModeTimeSeries    Mode = "timeseries"
)

// Modes lists every mode in display order.
func Modes() []Mode {
	return []Mode{ModeOverview, ModeCategorical, ModeNumeric, ModeRelationships, ModeTimeSeries}
}

// ParseMode accepts a mode name, case-insensitively. An empty string selects
// the overview.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeOverview, nil
	}
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Label is the human title of a mode.
func (m Mode) Label() string {
	switch m {
	case ModeOverview:
		return "Overview"
	case ModeCategorical:
		return "Categorical variables"
	case ModeNumeric:
		return "Numeric variables"
	case ModeRelationships:
		return "Relationships"
	case ModeTimeSeries:
		return "Time series"
	}
	return string(m)
}

// Kind names the statistic or chart an Operation produces.
type Kind string

const (
	KindMissingMap  Kind = "missing-map"
	KindDescribe    Kind = "describe"
	KindBar         Kind = "bar"
	KindPie         Kind = "pie"
	KindHistogram   Kind = "histogram"
	KindBox         Kind = "box"
	KindCorrelation Kind = "correlation"
	KindScatter     Kind = "scatter"
	KindTimeSeries  Kind = "timeseries"
)

const (
	DefaultTopN          = 20
	DefaultBins          = 30
	DefaultMissingMapRow = 100
)

// Params are the inputs of one operation. Unused fields stay zero.
type Params struct {
	// Column is the primary column: the categorical or numeric target, the
	// scatter x axis, or the numeric series of a time series.
	Column      string               `json:"column,omitempty"`
	Y           string               `json:"y,omitempty"`
	ColorBy     string               `json:"color_by,omitempty"`
	DateColumn  string               `json:"date_column,omitempty"`
	Columns     []string             `json:"columns,omitempty"`
	TopN        int                  `json:"top_n,omitempty"`
	Bins        int                  `json:"bins,omitempty"`
	MaxRows     int                  `json:"max_rows,omitempty"`
	Aggregation analysis.Aggregation `json:"aggregation,omitempty"`
}

// Operation is a named, parameterized request for one statistic or chart.
// It carries no data and renders nothing.
type Operation struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	Params Params `json:"params"`
}

// ErrEmptyResult is matched by every *EmptyResultError.
var ErrEmptyResult = errors.New("empty result")

// EmptyResultError reports that a mode lacks the columns it needs. Callers
// show it as a notice and disable the mode.
type EmptyResultError struct {
	Mode  Mode
	Class analysis.ColumnClass
	Need  int
	Have  int
}

func (e *EmptyResultError) Error() string {
	what := string(e.Class) + " column"
	if e.Class == "" {
		what = "column"
	}
	if e.Need != 1 {
		what += "s"
	}
	return fmt.Sprintf("%s needs at least %d %s (found %d)", e.Mode, e.Need, what, e.Have)
}

func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }

// SelectOperations maps mode onto its operations with default parameters
// bound to the first eligible columns. It is a pure function of its inputs.
func SelectOperations(mode Mode, classes analysis.Classes) ([]Operation, error) {
	require := func(class analysis.ColumnClass, need int, have []string) error {
		if len(have) < need {
			return &EmptyResultError{Mode: mode, Class: class, Need: need, Have: len(have)}
		}
		return nil
	}
	switch mode {
	case ModeOverview:
		if err := require("", 1, classes.All); err != nil {
			return nil, err
		}
		return []Operation{
			{Kind: KindMissingMap, Title: "Missing values", Params: Params{Columns: classes.All, MaxRows: DefaultMissingMapRow}},
			{Kind: KindDescribe, Title: "Descriptive statistics", Params: Params{Columns: classes.Numeric}},
		}, nil
	case ModeCategorical:
		if err := require(analysis.ClassCategorical, 1, classes.Categorical); err != nil {
			return nil, err
		}
		col := classes.Categorical[0]
		return []Operation{
			{Kind: KindBar, Title: "Frequency", Params: Params{Column: col, TopN: DefaultTopN}},
			{Kind: KindPie, Title: "Proportion", Params: Params{Column: col}},
		}, nil
	case ModeNumeric:
		if err := require(analysis.ClassNumeric, 1, classes.Numeric); err != nil {
			return nil, err
		}
		col := classes.Numeric[0]
		return []Operation{
			{Kind: KindHistogram, Title: "Distribution", Params: Params{Column: col, Bins: DefaultBins}},
			{Kind: KindBox, Title: "Box plot", Params: Params{Column: col}},
		}, nil
	case ModeRelationships:
		if err := require(analysis.ClassNumeric, 2, classes.Numeric); err != nil {
			return nil, err
		}
		return []Operation{
			{Kind: KindCorrelation, Title: "Correlation matrix", Params: Params{Columns: classes.Numeric}},
			{Kind: KindScatter, Title: "Scatter", Params: Params{Column: classes.Numeric[0], Y: classes.Numeric[1]}},
		}, nil
	case ModeTimeSeries:
		if err := require(analysis.ClassNumeric, 1, classes.Numeric); err != nil {
			return nil, err
		}
		return []Operation{
			{Kind: KindTimeSeries, Title: "Time series", Params: Params{
				Column:      classes.Numeric[0],
				DateColumn:  classes.DefaultDate,
				Aggregation: analysis.AggregateNone,
			}},
		}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// Available reports, for every mode, whether it can run on classes.
func Available(classes analysis.Classes) map[Mode]error {
	out := make(map[Mode]error, len(Modes()))
	for _, m := range Modes() {
		_, err := SelectOperations(m, classes)
		out[m] = err
	}
	return out
}
