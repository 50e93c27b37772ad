// Package render draws dispatch results as PNG or SVG charts.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dispatch"
)

// ErrUnsupported is returned for kinds that are shown as tables instead of
// charts (correlation heatmap, missing map, describe).
var ErrUnsupported = errors.New("no chart for operation")

// ErrNoData is returned when a result has nothing to plot.
var ErrNoData = errors.New("nothing to plot")

// Format is the output image format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg"; empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", PNG:
		return PNG, nil
	case SVG:
		return SVG, nil
	}
	return "", fmt.Errorf("unsupported image format %q (use png|svg)", s)
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

// Options sizes the image. Zero fields take defaults.
type Options struct {
	Format Format
	Width  int
	Height int
	// PieSlices caps the slices of a pie; the rest are merged into "Other".
	PieSlices int
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = PNG
	}
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 450
	}
	if o.PieSlices <= 0 {
		o.PieSlices = 10
	}
	return o
}

// Chartable reports whether Render can draw kind.
func Chartable(kind dispatch.Kind) bool {
	switch kind {
	case dispatch.KindBar, dispatch.KindPie, dispatch.KindHistogram, dispatch.KindBox,
		dispatch.KindScatter, dispatch.KindTimeSeries:
		return true
	}
	return false
}

// Render writes the chart of res to w.
func Render(w io.Writer, res *dispatch.Result, opt Options) error {
	if res == nil {
		return ErrNoData
	}
	opt = opt.withDefaults()
	title := res.Op.Title
	switch res.Op.Kind {
	case dispatch.KindBar:
		return bar(w, title, res.Frequency, opt)
	case dispatch.KindPie:
		return pie(w, title, res.Frequency, opt)
	case dispatch.KindHistogram:
		return histogram(w, title, res.Histogram, opt)
	case dispatch.KindBox:
		return box(w, title, res.Box, opt)
	case dispatch.KindScatter:
		return scatter(w, title, res.Scatter, opt)
	case dispatch.KindTimeSeries:
		return line(w, title, res.Series, opt)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, res.Op.Kind)
}

var palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

func color(i int) drawing.Color { return palette[i%len(palette)] }

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
}

// pointStyle renders points only, without connecting lines.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color, width float64) chart.Style {
	return chart.Style{StrokeColor: col, StrokeWidth: width}
}

// padded widens a degenerate range so the axis can be drawn.
func padded(lo, hi float64) *chart.ContinuousRange {
	if lo == hi {
		d := math.Abs(lo) * 0.1
		if d == 0 {
			d = 1
		}
		return &chart.ContinuousRange{Min: lo - d, Max: hi + d}
	}
	d := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - d, Max: hi + d}
}

func countRange(max float64) *chart.ContinuousRange {
	if max <= 0 {
		max = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: max * 1.1}
}

func truncateLabel(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func bar(w io.Writer, title string, f *analysis.Frequency, opt Options) error {
	if f == nil || len(f.Counts) == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, 0, len(f.Counts))
	max := 0.0
	for _, c := range f.Counts {
		v := float64(c.Count)
		max = math.Max(max, v)
		bars = append(bars, chart.Value{
			Label: truncateLabel(c.Value, 14),
			Value: v,
			Style: chart.Style{FillColor: color(0), StrokeColor: color(0), StrokeWidth: 1},
		})
	}
	bc := chart.BarChart{
		Title:      fmt.Sprintf("%s: %s", title, f.Column),
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		BarWidth:   barWidth(len(bars), opt.Width),
		BarSpacing: 4,
		XAxis:      chart.Shown(),
		YAxis:      chart.YAxis{Style: chart.Shown(), Range: countRange(max)},
		Bars:       bars,
	}
	return bc.Render(opt.Format.provider(), w)
}

func barWidth(n, width int) int {
	if n == 0 {
		return 20
	}
	bw := (width-120)/n - 4
	if bw < 4 {
		bw = 4
	}
	if bw > 60 {
		bw = 60
	}
	return bw
}

func pie(w io.Writer, title string, f *analysis.Frequency, opt Options) error {
	if f == nil || len(f.Counts) == 0 {
		return ErrNoData
	}
	vals := make([]chart.Value, 0, opt.PieSlices+1)
	other := 0
	for i, c := range f.Counts {
		if i >= opt.PieSlices {
			other += c.Count
			continue
		}
		vals = append(vals, chart.Value{
			Label: truncateLabel(c.Value, 18),
			Value: float64(c.Count),
			Style: chart.Style{FillColor: color(i)},
		})
	}
	if other > 0 {
		vals = append(vals, chart.Value{Label: "Other", Value: float64(other), Style: chart.Style{FillColor: drawing.ColorFromHex("c7c7c7")}})
	}
	pc := chart.PieChart{
		Title:      fmt.Sprintf("%s: %s", title, f.Column),
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		Values:     vals,
	}
	return pc.Render(opt.Format.provider(), w)
}

func histogram(w io.Writer, title string, h *analysis.Histogram, opt Options) error {
	if h == nil || len(h.Bins) == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, 0, len(h.Bins))
	max := 0.0
	for i, b := range h.Bins {
		label := ""
		// label every fifth edge to keep the axis readable
		if i%5 == 0 {
			label = fmt.Sprintf("%.3g", b.Lo)
		}
		max = math.Max(max, float64(b.Count))
		bars = append(bars, chart.Value{
			Label: label,
			Value: float64(b.Count),
			Style: chart.Style{FillColor: color(0), StrokeColor: drawing.ColorWhite, StrokeWidth: 1},
		})
	}
	bc := chart.BarChart{
		Title:      fmt.Sprintf("%s: %s", title, h.Column),
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		BarWidth:   barWidth(len(bars), opt.Width),
		BarSpacing: 1,
		XAxis:      chart.Shown(),
		YAxis:      chart.YAxis{Style: chart.Shown(), Range: countRange(max)},
		Bars:       bars,
	}
	return bc.Render(opt.Format.provider(), w)
}

func box(w io.Writer, title string, b *analysis.BoxStats, opt Options) error {
	if b == nil || b.Count == 0 {
		return ErrNoData
	}
	const left, right, mid = 0.7, 1.3, 1.0
	edge := lineStyle(color(0), 2)
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "IQR",
			XValues: []float64{left, right, right, left, left},
			YValues: []float64{b.Q1, b.Q1, b.Q3, b.Q3, b.Q1},
			Style:   edge,
		},
		chart.ContinuousSeries{
			Name:    "median",
			XValues: []float64{left, right},
			YValues: []float64{b.Median, b.Median},
			Style:   lineStyle(color(1), 3),
		},
		chart.ContinuousSeries{
			Name:    "lower whisker",
			XValues: []float64{mid, mid, left + 0.1, right - 0.1},
			YValues: []float64{b.Q1, b.LowerWhisker, b.LowerWhisker, b.LowerWhisker},
			Style:   edge,
		},
		chart.ContinuousSeries{
			Name:    "upper whisker",
			XValues: []float64{mid, mid, left + 0.1, right - 0.1},
			YValues: []float64{b.Q3, b.UpperWhisker, b.UpperWhisker, b.UpperWhisker},
			Style:   edge,
		},
	}
	if len(b.Outliers) > 0 {
		xs := make([]float64, len(b.Outliers))
		for i := range xs {
			xs[i] = mid
		}
		series = append(series, chart.ContinuousSeries{Name: "outliers", XValues: xs, YValues: b.Outliers, Style: pointStyle(color(3))})
	}
	ch := chart.Chart{
		Title:      fmt.Sprintf("%s: %s", title, b.Column),
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		XAxis:      chart.XAxis{Range: &chart.ContinuousRange{Min: 0, Max: 2}, Ticks: []chart.Tick{{Value: 0, Label: ""}, {Value: mid, Label: b.Column}, {Value: 2, Label: ""}}},
		YAxis:      chart.YAxis{Range: padded(b.Min, b.Max)},
		Series:     series,
	}
	return ch.Render(opt.Format.provider(), w)
}

func scatter(w io.Writer, title string, s *analysis.Scatter, opt Options) error {
	if s == nil || len(s.Points) == 0 {
		return ErrNoData
	}
	xlo, xhi := s.Points[0].X, s.Points[0].X
	ylo, yhi := s.Points[0].Y, s.Points[0].Y
	byGroup := map[string]*chart.ContinuousSeries{}
	var order []string
	for _, p := range s.Points {
		xlo, xhi = math.Min(xlo, p.X), math.Max(xhi, p.X)
		ylo, yhi = math.Min(ylo, p.Y), math.Max(yhi, p.Y)
		cs, ok := byGroup[p.Group]
		if !ok {
			cs = &chart.ContinuousSeries{Name: p.Group}
			byGroup[p.Group] = cs
			order = append(order, p.Group)
		}
		cs.XValues = append(cs.XValues, p.X)
		cs.YValues = append(cs.YValues, p.Y)
	}
	// series follow the sorted group list so colours are stable across requests
	if len(s.Groups) > 0 {
		order = s.Groups
	}
	series := make([]chart.Series, 0, len(order))
	for i, g := range order {
		cs := byGroup[g]
		if cs == nil {
			continue
		}
		if cs.Name == "" {
			cs.Name = s.Y
		}
		cs.Style = pointStyle(color(i))
		series = append(series, *cs)
	}
	t := fmt.Sprintf("%s: %s vs %s", title, s.Y, s.X)
	if s.ColorBy != "" {
		t += " by " + s.ColorBy
	}
	ch := chart.Chart{
		Title:      t,
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		XAxis:      chart.XAxis{Name: s.X, Range: padded(xlo, xhi)},
		YAxis:      chart.YAxis{Name: s.Y, Range: padded(ylo, yhi)},
		Series:     series,
	}
	if s.ColorBy != "" {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch.Render(opt.Format.provider(), w)
}

func line(w io.Writer, title string, ts *analysis.TimeSeries, opt Options) error {
	if ts == nil || len(ts.Points) == 0 {
		return ErrNoData
	}
	xs := make([]time.Time, len(ts.Points))
	ys := make([]float64, len(ts.Points))
	ylo, yhi := ts.Points[0].Value, ts.Points[0].Value
	for i, p := range ts.Points {
		xs[i] = p.Date
		ys[i] = p.Value
		ylo, yhi = math.Min(ylo, p.Value), math.Max(yhi, p.Value)
	}
	first, last := xs[0], xs[len(xs)-1]
	if !last.After(first) {
		// a single instant cannot span an axis; widen by a day on both sides
		first, last = first.Add(-24*time.Hour), last.Add(24*time.Hour)
	}
	layout := "2006-01-02"
	if ts.Aggregation != analysis.AggregateNone {
		layout = "2006-01"
	}
	style := lineStyle(color(0), 2)
	if len(xs) == 1 {
		style = pointStyle(color(0))
		style.DotWidth = 5
	}
	ch := chart.Chart{
		Title:      fmt.Sprintf("%s: %s by %s (%s)", title, ts.Column, ts.DateColumn, ts.Aggregation),
		Background: background(),
		Width:      opt.Width,
		Height:     opt.Height,
		XAxis: chart.XAxis{
			Name:           ts.DateColumn,
			ValueFormatter: chart.TimeValueFormatterWithFormat(layout),
			Range:          &chart.ContinuousRange{Min: chart.TimeToFloat64(first), Max: chart.TimeToFloat64(last)},
		},
		YAxis:  chart.YAxis{Name: ts.Column, Range: padded(ylo, yhi)},
		Series: []chart.Series{chart.TimeSeries{Name: ts.Column, XValues: xs, YValues: ys, Style: style}},
	}
	return ch.Render(opt.Format.provider(), w)
}
