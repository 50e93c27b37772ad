package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/utils"
)

var (
	anaLoad       loadFlags
	anaOutputPath string
	anaHeadRows   int
	anaTopValues  int
	anaNoCorr     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Summarize a CSV/TSV/XLSX file as a Markdown report",
	Example: `  edalens analyze sales.csv
  edalens analyze ventas.csv --separator semicolon --encoding latin-1 -o ventas.md
  edalens analyze book.xlsx --sheet-name 2024 --sample-rows 10000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		t, err := anaLoad.load(path)
		if err != nil {
			return err
		}
		opt := analysis.DefaultReportOptions()
		if anaHeadRows >= 0 {
			opt.SampleRows = anaHeadRows
		}
		if anaTopValues > 0 {
			opt.TopValues = anaTopValues
		}
		opt.Correlations = !anaNoCorr

		rep, err := analysis.BuildReport(t, opt)
		if err != nil {
			return err
		}
		md := rep.Markdown()

		out := cmd.OutOrStdout()
		if anaOutputPath == "" {
			fmt.Fprintln(out, md)
			return nil
		}
		if err := utils.SafeWriteFile(anaOutputPath, []byte(md)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote analysis to %s\n", anaOutputPath)
		for _, w := range rep.Warnings {
			fmt.Fprintf(out, "⚠ %s\n", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaLoad.register(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report (Markdown)")
	analyzeCmd.Flags().IntVar(&anaHeadRows, "head-rows", -1, "number of rows in the [HEAD] section (default 5)")
	analyzeCmd.Flags().IntVar(&anaTopValues, "top-values", 0, "most frequent values listed per categorical column (default 8)")
	analyzeCmd.Flags().BoolVar(&anaNoCorr, "no-correlations", false, "skip the correlation section")
}
