package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/dataset"
)

// loadFlags are the table-loading flags shared by every command that reads a file.
type loadFlags struct {
	separator  string
	encoding   string
	sheetName  string
	sampleRows int
}

func (l *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.separator, "separator", "", "CSV separator: comma|semicolon|pipe|tab (default from config, tab for .tsv)")
	cmd.Flags().StringVar(&l.encoding, "encoding", "", "text encoding: utf-8|latin-1|iso-8859-1|cp1252 (default from config)")
	cmd.Flags().StringVar(&l.sheetName, "sheet-name", "", "XLSX: sheet name to analyze (default first sheet)")
	cmd.Flags().IntVar(&l.sampleRows, "sample-rows", -1, "keep only the first N rows (0 = all; default from config)")
}

// options resolves the flags over the configured defaults. The configured
// separator is not applied to .tsv files.
func (l *loadFlags) options(path string) (dataset.Options, error) {
	c := settings()
	var opt dataset.Options

	sep := l.separator
	if sep == "" && strings.ToLower(filepath.Ext(path)) != ".tsv" {
		sep = c.Separator
	}
	r, err := dataset.ParseSeparator(sep)
	if err != nil {
		return opt, fmt.Errorf("--separator: %w", err)
	}
	opt.Separator = r

	enc := l.encoding
	if enc == "" {
		enc = c.Encoding
	}
	if opt.Encoding, err = dataset.ParseEncoding(enc); err != nil {
		return opt, fmt.Errorf("--encoding: %w", err)
	}
	opt.SheetName = l.sheetName
	opt.SampleRows = c.SampleRows
	if l.sampleRows >= 0 {
		opt.SampleRows = l.sampleRows
	}
	return opt, nil
}

func (l *loadFlags) load(path string) (*dataset.Table, error) {
	opt, err := l.options(path)
	if err != nil {
		return nil, err
	}
	t, err := dataset.LoadFile(path, opt)
	if err != nil {
		var le *dataset.LoadError
		if errors.As(err, &le) {
			return nil, fmt.Errorf("%w\n  Hint: %s", err, le.Hint())
		}
		return nil, err
	}
	logger.Debug().Str("file", path).Int("rows", t.Rows()).Int("cols", t.Cols()).Msg("table loaded")
	return t, nil
}

// expandInputs resolves globs, keeps literal paths that exist and drops
// duplicates. The result is sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}
