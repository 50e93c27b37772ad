package dataset

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

// Load reads the selected sheet (the first one by default). The first row is the header.
func (xlsxLoader) Load(name string, r io.Reader, opt Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &LoadError{Name: name, Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &LoadError{Name: name, Err: fmt.Errorf("workbook has no sheets")}
	}
	sheet := sheets[0]
	if opt.SheetName != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.SheetName) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, &LoadError{Name: name, Err: fmt.Errorf("sheet '%s' not found; available sheets: %s",
				opt.SheetName, strings.Join(sheets, ", "))}
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &LoadError{Name: name, Err: fmt.Errorf("read sheet %s: %w", sheet, err)}
	}
	if len(rows) == 0 {
		return FromRecords(name, nil, nil)
	}
	header := rows[0]
	body := rows[1:]
	// excelize trims trailing empty cells, so rows may be wider than the header.
	width := len(header)
	for _, r := range body {
		if len(r) > width {
			width = len(r)
		}
	}
	if width > len(header) {
		padded := make([]string, width)
		copy(padded, header)
		header = padded
	}
	return FromRecords(name, header, body)
}
