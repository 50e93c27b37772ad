package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gorilla/schema"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dispatch"
	"github.com/KaramelBytes/edalens/internal/render"
)

const previewRows = 5

// Tab is one analysis mode in the navigation. A disabled tab carries the
// reason as its notice.
type Tab struct {
	Mode     dispatch.Mode `json:"mode"`
	Label    string        `json:"label"`
	Active   bool          `json:"active"`
	Disabled bool          `json:"disabled"`
	Notice   string        `json:"notice,omitempty"`
	URL      string        `json:"url"`
}

// Panel is the computed output of one operation.
type Panel struct {
	Index    int                `json:"index"`
	Op       dispatch.Operation `json:"op"`
	Result   *dispatch.Result   `json:"result,omitempty"`
	ChartURL string             `json:"chart_url,omitempty"`
	Notice   string             `json:"notice,omitempty"`
}

// View is everything the dataset page shows for one selection. It is rebuilt
// on every request.
type View struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Rows       int                `json:"rows"`
	TotalRows  int                `json:"total_rows"`
	Cols       int                `json:"cols"`
	EmptyCells int                `json:"empty_cells"`
	Header     []string           `json:"header"`
	Preview    [][]string         `json:"preview"`
	Info       string             `json:"info"`
	Classes    analysis.Classes   `json:"classes"`
	Selection  dispatch.Selection `json:"selection"`
	Tabs       []Tab              `json:"tabs"`
	Panels     []Panel            `json:"panels"`
	Notice     string             `json:"notice,omitempty"`
	InsightURL string             `json:"-"`
}

// Sampled reports whether the view covers only the first rows of the file.
func (v *View) Sampled() bool { return v.TotalRows > v.Rows }

type viewBuilder struct {
	enc *schema.Encoder
}

func newViewBuilder() *viewBuilder {
	return &viewBuilder{enc: schema.NewEncoder()}
}

func (b *viewBuilder) build(sess *Session, sel dispatch.Selection) *View {
	t := sess.Table
	if sel.Mode == "" {
		sel.Mode = dispatch.ModeOverview
	}
	v := &View{
		ID:         sess.ID,
		Name:       sess.Name,
		Rows:       t.Rows(),
		TotalRows:  t.TotalRows(),
		Cols:       t.Cols(),
		EmptyCells: t.MissingCells(),
		Header:     t.Names(),
		Preview:    t.Preview(previewRows),
		Info:       t.Info(),
		Classes:    sess.Classes,
		Selection:  sel,
	}

	v.InsightURL = b.url(fmt.Sprintf("/datasets/%s/insights", sess.ID), sel)

	avail := dispatch.Available(sess.Classes)
	for _, m := range dispatch.Modes() {
		tab := Tab{
			Mode:   m,
			Label:  m.Label(),
			Active: m == sel.Mode,
			URL:    b.url(fmt.Sprintf("/datasets/%s", sess.ID), dispatch.Selection{Mode: m}),
		}
		if err := avail[m]; err != nil {
			tab.Disabled = true
			tab.Notice = notice(err)
		}
		v.Tabs = append(v.Tabs, tab)
	}

	ops, err := dispatch.Plan(sel, sess.Classes)
	if err != nil {
		v.Notice = notice(err)
		return v
	}
	for i, op := range ops {
		p := Panel{Index: i, Op: op}
		res, err := dispatch.Execute(op, t)
		if err != nil {
			p.Notice = notice(err)
		} else {
			p.Result = res
			if render.Chartable(op.Kind) {
				p.ChartURL = b.url(fmt.Sprintf("/datasets/%s/charts/%d", sess.ID, i), sel)
			}
		}
		v.Panels = append(v.Panels, p)
	}
	return v
}

func (b *viewBuilder) url(path string, sel dispatch.Selection) string {
	q := url.Values{}
	if err := b.enc.Encode(sel, q); err != nil || len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// notice turns an expected analysis failure into the sentence shown in place
// of a panel.
func notice(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrEmptyResult):
		return err.Error()
	case errors.Is(err, analysis.ErrNoValidDates):
		return "No valid dates found in the selected date column. Pick another date column."
	case errors.Is(err, dispatch.ErrInvalidSelection):
		return err.Error()
	}
	return "Could not compute this view: " + err.Error()
}

// Bound merges the parameters of every panel, so the controls can show the
// columns actually in use when the selection left them blank.
func (v *View) Bound() dispatch.Params {
	var out dispatch.Params
	for _, p := range v.Panels {
		in := p.Op.Params
		setIf(&out.Column, in.Column)
		setIf(&out.Y, in.Y)
		setIf(&out.ColorBy, in.ColorBy)
		setIf(&out.DateColumn, in.DateColumn)
		if in.Aggregation != "" {
			out.Aggregation = in.Aggregation
		}
		if in.TopN > 0 {
			out.TopN = in.TopN
		}
		if in.Bins > 0 {
			out.Bins = in.Bins
		}
	}
	return out
}

func setIf(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
