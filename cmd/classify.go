package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dispatch"
	"github.com/KaramelBytes/edalens/internal/utils"
)

var (
	clsLoad  loadFlags
	clsJSON  bool
	clsQuiet bool
)

// classification is the per-file result of the classify command.
type classification struct {
	File    string            `json:"file"`
	Rows    int               `json:"rows"`
	Cols    int               `json:"cols"`
	Classes analysis.Classes  `json:"classes"`
	Modes   map[string]string `json:"modes"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <files...>",
	Short: "Show the column classes and available analysis modes of one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var results []classification
		for i, path := range files {
			if !clsQuiet && !clsJSON {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, len(files), filepath.Base(path))
			}
			t, err := clsLoad.load(path)
			if err != nil {
				return err
			}
			classes := analysis.Classify(t)
			res := classification{File: path, Rows: t.Rows(), Cols: t.Cols(), Classes: classes, Modes: map[string]string{}}
			avail := dispatch.Available(classes)
			for _, m := range dispatch.Modes() {
				if err := avail[m]; err != nil {
					res.Modes[string(m)] = err.Error()
				} else {
					res.Modes[string(m)] = "ok"
				}
			}
			results = append(results, res)
			if !clsJSON {
				printClassification(cmd, res)
			}
		}
		if clsJSON {
			b, err := utils.PrettyJSON(results)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		}
		return nil
	},
}

func printClassification(cmd *cobra.Command, c classification) {
	out := cmd.OutOrStdout()
	list := func(v []string) string {
		if len(v) == 0 {
			return "(none)"
		}
		return strings.Join(v, ", ")
	}
	fmt.Fprintf(out, "%s: %d rows × %d columns\n", filepath.Base(c.File), c.Rows, c.Cols)
	fmt.Fprintf(out, "  numeric:         %s\n", list(c.Classes.Numeric))
	fmt.Fprintf(out, "  categorical:     %s\n", list(c.Classes.Categorical))
	fmt.Fprintf(out, "  date candidates: %s\n", list(c.Classes.DateCandidates))
	fmt.Fprintf(out, "  default date:    %s\n", c.Classes.DefaultDate)
	for _, m := range dispatch.Modes() {
		if msg := c.Modes[string(m)]; msg == "ok" {
			fmt.Fprintf(out, "  ✓ %s\n", m.Label())
		} else {
			fmt.Fprintf(out, "  ⚠ %s: %s\n", m.Label(), msg)
		}
	}
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	clsLoad.register(classifyCmd)
	classifyCmd.Flags().BoolVar(&clsJSON, "json", false, "emit results as JSON")
	classifyCmd.Flags().BoolVar(&clsQuiet, "quiet", false, "suppress progress output")
}
