package analysis

import (
	"strings"

	"github.com/KaramelBytes/edalens/internal/dataset"
)

// ColumnClass is the semantic tag derived for a column.
type ColumnClass string

const (
	ClassNumeric       ColumnClass = "numeric"
	ClassCategorical   ColumnClass = "categorical"
	ClassDateCandidate ColumnClass = "date-candidate"
	ClassUnclassified  ColumnClass = "unclassified"
)

// DateKeywords are matched as substrings of the lower-cased column name.
var DateKeywords = []string{"date", "fecha", "time", "año"}

// Classes partitions a table's columns. Numeric and Categorical are disjoint;
// DateCandidates is computed from names alone and may overlap either.
type Classes struct {
	Numeric        []string `json:"numeric"`
	Categorical    []string `json:"categorical"`
	DateCandidates []string `json:"date_candidates"`
	// DefaultDate is the first date candidate, or the first column when no
	// name matches. Empty for a table without columns.
	DefaultDate string `json:"default_date"`
	// All is every column name in table order.
	All []string `json:"all"`
}

// Classify derives the column classes of t from its load-time kinds and its
// column names. Cell values are never inspected.
func Classify(t *dataset.Table) Classes {
	c := Classes{
		Numeric:        []string{},
		Categorical:    []string{},
		DateCandidates: []string{},
		All:            []string{},
	}
	if t == nil {
		return c
	}
	for _, col := range t.Columns() {
		c.All = append(c.All, col.Name)
		switch col.Kind {
		case dataset.KindNumeric:
			c.Numeric = append(c.Numeric, col.Name)
		case dataset.KindCategorical:
			c.Categorical = append(c.Categorical, col.Name)
		}
		if IsDateCandidate(col.Name) {
			c.DateCandidates = append(c.DateCandidates, col.Name)
		}
	}
	if len(c.DateCandidates) > 0 {
		c.DefaultDate = c.DateCandidates[0]
	} else if len(c.All) > 0 {
		c.DefaultDate = c.All[0]
	}
	return c
}

// IsDateCandidate reports whether a column name looks date-like.
func IsDateCandidate(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range DateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Of returns the classes a column belongs to. A column in neither the numeric
// nor the categorical class is reported as unclassified.
func (c Classes) Of(name string) []ColumnClass {
	var out []ColumnClass
	switch {
	case contains(c.Numeric, name):
		out = append(out, ClassNumeric)
	case contains(c.Categorical, name):
		out = append(out, ClassCategorical)
	case contains(c.All, name):
		out = append(out, ClassUnclassified)
	}
	if contains(c.DateCandidates, name) {
		out = append(out, ClassDateCandidate)
	}
	return out
}

// Has reports whether name belongs to class.
func (c Classes) Has(class ColumnClass, name string) bool {
	for _, cl := range c.Of(name) {
		if cl == class {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
