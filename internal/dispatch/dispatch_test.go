package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dataset"
)

const salesCSV = "fecha_venta,monto,costo,categoria\n" +
	"2020-01-05,10,4,norte\n" +
	"2020-01-20,5,2,sur\n" +
	"2020-02-01,7,3,norte\n"

func load(t *testing.T, csv string) (*dataset.Table, analysis.Classes) {
	t.Helper()
	tbl, err := dataset.Load("t.csv", strings.NewReader(csv), dataset.Options{})
	require.NoError(t, err)
	return tbl, analysis.Classify(tbl)
}

func TestSelectOperationsByMode(t *testing.T) {
	_, classes := load(t, salesCSV)
	cases := []struct {
		mode  Mode
		kinds []Kind
	}{
		{ModeOverview, []Kind{KindMissingMap, KindDescribe}},
		{ModeCategorical, []Kind{KindBar, KindPie}},
		{ModeNumeric, []Kind{KindHistogram, KindBox}},
		{ModeRelationships, []Kind{KindCorrelation, KindScatter}},
		{ModeTimeSeries, []Kind{KindTimeSeries}},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			ops, err := SelectOperations(tc.mode, classes)
			require.NoError(t, err)
			var got []Kind
			for _, op := range ops {
				got = append(got, op.Kind)
			}
			assert.Equal(t, tc.kinds, got)
		})
	}

	ops, _ := SelectOperations(ModeCategorical, classes)
	assert.Equal(t, 20, ops[0].Params.TopN)
	assert.Equal(t, "categoria", ops[0].Params.Column)
	ops, _ = SelectOperations(ModeNumeric, classes)
	assert.Equal(t, 30, ops[0].Params.Bins)
	ops, _ = SelectOperations(ModeTimeSeries, classes)
	assert.Equal(t, "fecha_venta", ops[0].Params.DateColumn)
	assert.Equal(t, analysis.AggregateNone, ops[0].Params.Aggregation)
}

func TestRelationshipsNeedsTwoNumericColumns(t *testing.T) {
	_, classes := load(t, "fecha,monto,zona\n2020-01-01,1,a\n")
	ops, err := SelectOperations(ModeRelationships, classes)
	assert.Nil(t, ops)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResult))
	var empty *EmptyResultError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 2, empty.Need)
	assert.Equal(t, 1, empty.Have)
	assert.Equal(t, "relationships needs at least 2 numeric columns (found 1)", err.Error())
}

func TestEmptyTableDisablesEveryMode(t *testing.T) {
	_, classes := load(t, "")
	for mode, err := range Available(classes) {
		assert.ErrorIs(t, err, ErrEmptyResult, "mode %s", mode)
	}
	_, err := SelectOperations(Mode("pivot"), classes)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyResult))
}

func TestSelectOperationsIsPure(t *testing.T) {
	_, classes := load(t, salesCSV)
	a, err := SelectOperations(ModeRelationships, classes)
	require.NoError(t, err)
	b, err := SelectOperations(ModeRelationships, classes)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, classes, analysis.Classify(mustTable(t)))
}

func mustTable(t *testing.T) *dataset.Table {
	tbl, _ := load(t, salesCSV)
	return tbl
}

func TestPlanBindsSelection(t *testing.T) {
	_, classes := load(t, salesCSV)
	ops, err := Plan(Selection{Mode: ModeRelationships, Column: "costo", ColorBy: "categoria"}, classes)
	require.NoError(t, err)
	scatter := ops[1].Params
	assert.Equal(t, "costo", scatter.Column)
	assert.Equal(t, "monto", scatter.Y)
	assert.Equal(t, "categoria", scatter.ColorBy)

	ops, err = Plan(Selection{Mode: ModeTimeSeries, Column: "costo", Aggregation: "monthly-sum"}, classes)
	require.NoError(t, err)
	assert.Equal(t, analysis.AggregateMonthlySum, ops[0].Params.Aggregation)
	assert.Equal(t, "costo", ops[0].Params.Column)

	ops, err = Plan(Selection{Mode: ModeCategorical, TopN: 5}, classes)
	require.NoError(t, err)
	assert.Equal(t, 5, ops[0].Params.TopN)

	ops, err = Plan(Selection{}, classes)
	require.NoError(t, err)
	assert.Equal(t, KindMissingMap, ops[0].Kind)
}

func TestPlanRejectsWrongClass(t *testing.T) {
	_, classes := load(t, salesCSV)
	for _, sel := range []Selection{
		{Mode: ModeNumeric, Column: "categoria"},
		{Mode: ModeCategorical, Column: "monto"},
		{Mode: ModeRelationships, ColorBy: "monto"},
		{Mode: ModeTimeSeries, DateColumn: "nope"},
		{Mode: ModeTimeSeries, Aggregation: "weekly"},
	} {
		_, err := Plan(sel, classes)
		assert.ErrorIs(t, err, ErrInvalidSelection, "%+v", sel)
	}
}

func TestExecute(t *testing.T) {
	tbl, classes := load(t, salesCSV)

	ops, err := Plan(Selection{Mode: ModeTimeSeries, Aggregation: analysis.AggregateMonthlySum}, classes)
	require.NoError(t, err)
	res, err := Execute(ops[0], tbl)
	require.NoError(t, err)
	require.Len(t, res.Series.Points, 2)
	assert.Equal(t, 15.0, res.Series.Points[0].Value)
	assert.Equal(t, 7.0, res.Series.Points[1].Value)

	ops, _ = Plan(Selection{Mode: ModeCategorical, TopN: 1}, classes)
	bar, err := Execute(ops[0], tbl)
	require.NoError(t, err)
	assert.Equal(t, []analysis.CategoryCount{{Value: "norte", Count: 2}}, bar.Frequency.Counts)
	pie, err := Execute(ops[1], tbl)
	require.NoError(t, err)
	assert.Len(t, pie.Frequency.Counts, 2)

	ops, _ = Plan(Selection{Mode: ModeOverview}, classes)
	miss, err := Execute(ops[0], tbl)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, miss.MissingMap.Counts)
	desc, err := Execute(ops[1], tbl)
	require.NoError(t, err)
	assert.Len(t, desc.Describe, 2)

	ops, _ = Plan(Selection{Mode: ModeRelationships}, classes)
	corr, err := Execute(ops[0], tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"monto", "costo"}, corr.Corr.Columns)
}

func TestExecuteTimeSeriesWithoutDates(t *testing.T) {
	tbl, classes := load(t, "id,v\na,1\nb,2\n")
	ops, err := SelectOperations(ModeTimeSeries, classes)
	require.NoError(t, err)
	assert.Equal(t, "id", ops[0].Params.DateColumn)
	_, err = Execute(ops[0], tbl)
	assert.ErrorIs(t, err, analysis.ErrNoValidDates)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Relationships")
	require.NoError(t, err)
	assert.Equal(t, ModeRelationships, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOverview, m)
	_, err = ParseMode("pivot")
	assert.Error(t, err)
}
