package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dispatch"
	"github.com/KaramelBytes/edalens/internal/render"
	"github.com/KaramelBytes/edalens/internal/utils"
)

var (
	chLoad   loadFlags
	chSel    dispatch.Selection
	chMode   string
	chAgg    string
	chFormat string
	chOutDir string
	chWidth  int
	chHeight int
	chQuiet  bool
)

var chartCmd = &cobra.Command{
	Use:   "chart <file>",
	Short: "Render the charts of an analysis mode to PNG or SVG files",
	Example: `  edalens chart sales.csv --mode categorical-overview --column region
  edalens chart sales.csv --mode relationships --x price --y units --color region --format svg
  edalens chart sales.csv --mode timeseries --date fecha --column ventas --agg monthly-sum -d charts/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		mode, err := dispatch.ParseMode(chMode)
		if err != nil {
			return fmt.Errorf("--mode: %w (use %s)", err, modeNames())
		}
		format, err := render.ParseFormat(chFormat)
		if err != nil {
			return err
		}
		sel := chSel
		sel.Mode = mode
		sel.Aggregation = analysis.Aggregation(chAgg)
		c := settings()
		if sel.TopN <= 0 {
			sel.TopN = c.TopN
		}
		if sel.Bins <= 0 {
			sel.Bins = c.HistBins
		}

		t, err := chLoad.load(path)
		if err != nil {
			return err
		}
		ops, err := dispatch.Plan(sel, analysis.Classify(t))
		if err != nil {
			if errors.Is(err, dispatch.ErrEmptyResult) {
				return fmt.Errorf("%s is not available for %s: %w", mode.Label(), filepath.Base(path), err)
			}
			return err
		}
		if chOutDir != "" {
			if err := os.MkdirAll(chOutDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		written := 0
		for i, op := range ops {
			if !render.Chartable(op.Kind) {
				if !chQuiet {
					fmt.Fprintf(out, "⚠ %s: shown as a table, run 'edalens analyze' for the numbers\n", op.Title)
				}
				continue
			}
			res, err := dispatch.Execute(op, t)
			if err != nil {
				if errors.Is(err, analysis.ErrNoValidDates) {
					fmt.Fprintf(out, "⚠ %s: no valid dates in column %q\n", op.Title, op.Params.DateColumn)
					continue
				}
				return err
			}
			var buf bytes.Buffer
			if err := render.Render(&buf, res, render.Options{Format: format, Width: chWidth, Height: chHeight}); err != nil {
				if errors.Is(err, render.ErrNoData) {
					fmt.Fprintf(out, "⚠ %s: nothing to plot\n", op.Title)
					continue
				}
				return fmt.Errorf("render %s: %w", op.Kind, err)
			}
			name := fmt.Sprintf("%s_%s_%d_%s.%s", base, mode, i, op.Kind, format)
			target := filepath.Join(chOutDir, name)
			if err := utils.SafeWriteFile(target, buf.Bytes()); err != nil {
				return err
			}
			written++
			if !chQuiet {
				fmt.Fprintf(out, "✓ %s → %s\n", op.Title, target)
			}
		}
		if written == 0 && !chQuiet {
			fmt.Fprintln(out, "⚠ No charts written")
		}
		return nil
	},
}

func modeNames() string {
	names := make([]string, 0, len(dispatch.Modes()))
	for _, m := range dispatch.Modes() {
		names = append(names, string(m))
	}
	return strings.Join(names, "|")
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chLoad.register(chartCmd)
	f := chartCmd.Flags()
	f.StringVarP(&chMode, "mode", "m", "overview", "analysis mode: "+modeNames())
	f.StringVar(&chSel.Column, "column", "", "primary column (categorical/numeric target, or the series of a time series)")
	f.StringVar(&chSel.Column, "x", "", "scatter x axis (alias of --column)")
	f.StringVar(&chSel.Y, "y", "", "scatter y axis")
	f.StringVar(&chSel.ColorBy, "color", "", "categorical column to color scatter points by")
	f.StringVar(&chSel.DateColumn, "date", "", "date column of a time series (default: first date-like column)")
	f.StringVar(&chAgg, "agg", "none", "time-series aggregation: none|monthly-mean|monthly-sum")
	f.IntVar(&chSel.TopN, "top", 0, "categories shown in the bar chart (default from config)")
	f.IntVar(&chSel.Bins, "bins", 0, "histogram bins (default from config)")
	f.StringVar(&chFormat, "format", "png", "image format: png|svg")
	f.StringVarP(&chOutDir, "out-dir", "d", "", "directory for the images (default current directory)")
	f.IntVar(&chWidth, "width", 0, "image width in pixels (default 800)")
	f.IntVar(&chHeight, "height", 0, "image height in pixels (default 450)")
	f.BoolVar(&chQuiet, "quiet", false, "suppress non-essential output")
}
