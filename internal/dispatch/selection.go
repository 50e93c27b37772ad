package dispatch

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/edalens/internal/analysis"
)

// ErrInvalidSelection is wrapped when a selected column does not fit the mode.
var ErrInvalidSelection = errors.New("invalid selection")

// Selection is the user's current choice. It is decoded from each request
// and never stored.
type Selection struct {
	Mode        Mode                 `schema:"mode" json:"mode"`
	Column      string               `schema:"column,omitempty" json:"column,omitempty"`
	Y           string               `schema:"y,omitempty" json:"y,omitempty"`
	ColorBy     string               `schema:"color,omitempty" json:"color,omitempty"`
	DateColumn  string               `schema:"date,omitempty" json:"date,omitempty"`
	Aggregation analysis.Aggregation `schema:"agg,omitempty" json:"agg,omitempty"`
	TopN        int                  `schema:"top,omitempty" json:"top,omitempty"`
	Bins        int                  `schema:"bins,omitempty" json:"bins,omitempty"`
}

// Plan selects the operations of sel.Mode and binds the selected columns onto
// them. Blank fields keep the defaults chosen by SelectOperations.
func Plan(sel Selection, classes analysis.Classes) ([]Operation, error) {
	mode := sel.Mode
	if mode == "" {
		mode = ModeOverview
	}
	ops, err := SelectOperations(mode, classes)
	if err != nil {
		return nil, err
	}
	check := func(name string, class analysis.ColumnClass) error {
		if name == "" || classes.Has(class, name) {
			return nil
		}
		return fmt.Errorf("%w: %q is not a %s column", ErrInvalidSelection, name, class)
	}
	switch mode {
	case ModeCategorical:
		if err := check(sel.Column, analysis.ClassCategorical); err != nil {
			return nil, err
		}
	case ModeNumeric:
		if err := check(sel.Column, analysis.ClassNumeric); err != nil {
			return nil, err
		}
	case ModeRelationships:
		if err := check(sel.Column, analysis.ClassNumeric); err != nil {
			return nil, err
		}
		if err := check(sel.Y, analysis.ClassNumeric); err != nil {
			return nil, err
		}
		if err := check(sel.ColorBy, analysis.ClassCategorical); err != nil {
			return nil, err
		}
	case ModeTimeSeries:
		if err := check(sel.Column, analysis.ClassNumeric); err != nil {
			return nil, err
		}
		if sel.DateColumn != "" && !contains(classes.All, sel.DateColumn) {
			return nil, fmt.Errorf("%w: unknown date column %q", ErrInvalidSelection, sel.DateColumn)
		}
		if _, err := analysis.ParseAggregation(string(sel.Aggregation)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
		}
	}

	for i := range ops {
		p := &ops[i].Params
		switch ops[i].Kind {
		case KindBar, KindPie, KindHistogram, KindBox:
			setIf(&p.Column, sel.Column)
		case KindScatter:
			setIf(&p.Column, sel.Column)
			setIf(&p.Y, sel.Y)
			setIf(&p.ColorBy, sel.ColorBy)
			if p.Column == p.Y {
				// keep the axes distinct when only one side was chosen
				for _, c := range classes.Numeric {
					if c != p.Column {
						p.Y = c
						break
					}
				}
			}
		case KindTimeSeries:
			setIf(&p.Column, sel.Column)
			setIf(&p.DateColumn, sel.DateColumn)
			agg, _ := analysis.ParseAggregation(string(sel.Aggregation))
			p.Aggregation = agg
		}
		if ops[i].Kind == KindBar && sel.TopN > 0 {
			p.TopN = sel.TopN
		}
		if ops[i].Kind == KindHistogram && sel.Bins > 0 {
			p.Bins = sel.Bins
		}
	}
	return ops, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
