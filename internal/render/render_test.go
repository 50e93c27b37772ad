package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dataset"
	"github.com/KaramelBytes/edalens/internal/dispatch"
)

const csvData = "fecha,monto,costo,zona\n" +
	"2021-01-03,10,4,norte\n" +
	"2021-01-17,12,5,sur\n" +
	"2021-02-02,7,3,norte\n" +
	"2021-02-20,30,11,este\n" +
	"2021-03-05,9,4,sur\n"

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func results(t *testing.T, sel dispatch.Selection) []*dispatch.Result {
	t.Helper()
	tbl, err := dataset.Load("r.csv", strings.NewReader(csvData), dataset.Options{})
	require.NoError(t, err)
	ops, err := dispatch.Plan(sel, analysis.Classify(tbl))
	require.NoError(t, err)
	var out []*dispatch.Result
	for _, op := range ops {
		res, err := dispatch.Execute(op, tbl)
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestRenderChartsAsPNG(t *testing.T) {
	sels := []dispatch.Selection{
		{Mode: dispatch.ModeCategorical},
		{Mode: dispatch.ModeNumeric},
		{Mode: dispatch.ModeRelationships, ColorBy: "zona"},
		{Mode: dispatch.ModeTimeSeries, Aggregation: analysis.AggregateMonthlyMean},
		{Mode: dispatch.ModeTimeSeries},
	}
	for _, sel := range sels {
		for _, res := range results(t, sel) {
			if !Chartable(res.Op.Kind) {
				continue
			}
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, res, Options{}), "kind %s", res.Op.Kind)
			assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic), "kind %s did not produce a png", res.Op.Kind)
		}
	}
}

func TestRenderSVG(t *testing.T) {
	res := results(t, dispatch.Selection{Mode: dispatch.ModeNumeric})[0]
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, Options{Format: SVG, Width: 640, Height: 360}))
	assert.Contains(t, buf.String(), "<svg")
}

func TestRenderTablesAreUnsupported(t *testing.T) {
	for _, res := range results(t, dispatch.Selection{Mode: dispatch.ModeOverview}) {
		assert.False(t, Chartable(res.Op.Kind))
		err := Render(&bytes.Buffer{}, res, Options{})
		assert.ErrorIs(t, err, ErrUnsupported)
	}
	corr := results(t, dispatch.Selection{Mode: dispatch.ModeRelationships})[0]
	assert.ErrorIs(t, Render(&bytes.Buffer{}, corr, Options{}), ErrUnsupported)
}

func TestRenderNoData(t *testing.T) {
	res := &dispatch.Result{
		Op:        dispatch.Operation{Kind: dispatch.KindBar},
		Frequency: &analysis.Frequency{Column: "x"},
	}
	assert.ErrorIs(t, Render(&bytes.Buffer{}, res, Options{}), ErrNoData)
	assert.ErrorIs(t, Render(&bytes.Buffer{}, nil, Options{}), ErrNoData)
}

func TestRenderSinglePointSeries(t *testing.T) {
	tbl, err := dataset.Load("one.csv", strings.NewReader("date,v\n2020-05-01,3\n"), dataset.Options{})
	require.NoError(t, err)
	ops, err := dispatch.SelectOperations(dispatch.ModeTimeSeries, analysis.Classify(tbl))
	require.NoError(t, err)
	res, err := dispatch.Execute(ops[0], tbl)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, Options{}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("SVG")
	require.NoError(t, err)
	assert.Equal(t, SVG, f)
	assert.Equal(t, "image/svg+xml", f.ContentType())
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.ContentType())
	_, err = ParseFormat("gif")
	assert.Error(t, err)
}
