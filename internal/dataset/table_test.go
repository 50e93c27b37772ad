package dataset

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const salesCSV = "fecha_venta;monto;categoria;activo\n" +
	"2020-01-05;10;norte;true\n" +
	"2020-01-20;5,5;sur;false\n" +
	"2020-02-01;;norte;true\n"

func TestLoadSemicolonKinds(t *testing.T) {
	tbl, err := Load("ventas.csv", strings.NewReader(salesCSV), Options{Separator: ';'})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Name != "ventas.csv" {
		t.Fatalf("name = %q", tbl.Name)
	}
	if tbl.Rows() != 3 || tbl.Cols() != 4 {
		t.Fatalf("shape = %dx%d, want 3x4", tbl.Rows(), tbl.Cols())
	}
	want := map[string]Kind{
		"fecha_venta": KindTemporal,
		// "5,5" is not a number for the dataframe parser, so the column stays text.
		"monto":     KindCategorical,
		"categoria": KindCategorical,
		"activo":    KindUnclassified,
	}
	for name, k := range want {
		got, ok := tbl.Kind(name)
		if !ok || got != k {
			t.Fatalf("kind(%s) = %v, want %v", name, got, k)
		}
	}
	if tbl.MissingCells() != 1 {
		t.Fatalf("missing cells = %d, want 1", tbl.MissingCells())
	}
}

func TestLoadNumericColumnAndFloats(t *testing.T) {
	csv := "fecha_venta,monto,categoria\n2020-01-05,10,a\n2020-01-20,5.5,b\n2020-02-01,,a\n"
	tbl, err := Load("v.csv", strings.NewReader(csv), Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k, _ := tbl.Kind("monto"); k != KindNumeric {
		t.Fatalf("monto kind = %v", k)
	}
	vals, err := tbl.Floats("monto")
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if len(vals) != 3 || vals[0] != 10 || vals[1] != 5.5 || !math.IsNaN(vals[2]) {
		t.Fatalf("floats = %v", vals)
	}
	if _, err := tbl.Floats("nope"); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestLoadLatin1(t *testing.T) {
	raw := "año,región\n2021,Peñalolén\n2022,Ñuñoa\n"
	enc, err := charmap.ISO8859_1.NewEncoder().String(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Load("x.csv", strings.NewReader(enc), Options{}); err == nil {
		t.Fatalf("expected utf-8 load failure for latin-1 bytes")
	} else {
		var le *LoadError
		if !errors.As(err, &le) || !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("expected LoadError wrapping ErrInvalidEncoding, got %v", err)
		}
		if !strings.Contains(le.Hint(), "latin-1") {
			t.Fatalf("hint = %q", le.Hint())
		}
	}
	tbl, err := Load("x.csv", strings.NewReader(enc), Options{Encoding: EncodingLatin1})
	if err != nil {
		t.Fatalf("Load latin-1: %v", err)
	}
	names := tbl.Names()
	if names[0] != "año" || names[1] != "región" {
		t.Fatalf("names = %v", names)
	}
	vals, _, _ := tbl.Strings("región")
	if vals[0] != "Peñalolén" {
		t.Fatalf("value = %q", vals[0])
	}
}

func TestLoadRaggedRows(t *testing.T) {
	if _, err := Load("bad.csv", strings.NewReader("a,b\n1,2,3\n"), Options{}); err == nil {
		t.Fatalf("expected error for row wider than header")
	}
	tbl, err := Load("short.csv", strings.NewReader("a,b\n1\n2,x\n"), Options{})
	if err != nil {
		t.Fatalf("short rows should pad: %v", err)
	}
	miss, _ := tbl.Missing("b")
	if !miss[0] || miss[1] {
		t.Fatalf("missing mask = %v", miss)
	}
}

func TestLoadEmptyAndHeaderOnly(t *testing.T) {
	tbl, err := Load("empty.csv", strings.NewReader(""), Options{})
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if tbl.Cols() != 0 || tbl.Rows() != 0 {
		t.Fatalf("expected empty table")
	}
	tbl, err = Load("h.csv", strings.NewReader("a,b\n"), Options{})
	if err != nil {
		t.Fatalf("header only: %v", err)
	}
	if tbl.Cols() != 2 || tbl.Rows() != 0 {
		t.Fatalf("shape = %dx%d", tbl.Rows(), tbl.Cols())
	}
	for _, c := range tbl.Columns() {
		if c.Kind != KindUnclassified {
			t.Fatalf("column %s kind = %v", c.Name, c.Kind)
		}
	}
}

func TestHeaderNormalization(t *testing.T) {
	tbl, err := Load("d.csv", strings.NewReader("x,,x\n1,2,3\n"), Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := strings.Join(tbl.Names(), "|")
	if got != "x|Column_2|x.1" {
		t.Fatalf("names = %s", got)
	}
}

func TestHeadKeepsKinds(t *testing.T) {
	csv := "n,c\n1,a\n2,b\n3,c\nx,d\n"
	tbl, err := Load("h.csv", strings.NewReader(csv), Options{SampleRows: 3})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Rows() != 3 || tbl.TotalRows() != 4 {
		t.Fatalf("rows = %d total = %d", tbl.Rows(), tbl.TotalRows())
	}
	// kinds come from the full load, where "x" made n a text column
	if k, _ := tbl.Kind("n"); k != KindCategorical {
		t.Fatalf("kind = %v", k)
	}
	prev := tbl.Preview(5)
	if len(prev) != 3 || prev[2][1] != "c" {
		t.Fatalf("preview = %v", prev)
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	cells := [][]any{
		{"Fecha", "Ventas", "Zona"},
		{"2023-03-01", 12.5, "A"},
		{"2023-04-01", 7, "B"},
	}
	for i, row := range cells {
		for j, v := range row {
			ref, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue("Sheet1", ref, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ventas.xlsx")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := LoadFile(path, Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if k, _ := tbl.Kind("Ventas"); k != KindNumeric {
		t.Fatalf("Ventas kind = %v", k)
	}
	if k, _ := tbl.Kind("Fecha"); k != KindTemporal {
		t.Fatalf("Fecha kind = %v", k)
	}

	_, err = Load("ventas.xlsx", bytes.NewReader(buf.Bytes()), Options{SheetName: "Data"})
	if err == nil || !strings.Contains(err.Error(), "available sheets: Sheet1") {
		t.Fatalf("expected missing-sheet error, got %v", err)
	}
}

func TestParseSeparatorAndEncoding(t *testing.T) {
	for in, want := range map[string]rune{"comma": ',', ";": ';', "pipe": '|', "tab": '\t', "": 0} {
		got, err := ParseSeparator(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeparator(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSeparator(":"); err == nil {
		t.Fatalf("expected error")
	}
	for in, want := range map[string]Encoding{"UTF-8": EncodingUTF8, "latin-1": EncodingLatin1, "ISO-8859-1": EncodingISO88591, "cp1252": EncodingCP1252} {
		got, err := ParseEncoding(in)
		if err != nil || got != want {
			t.Fatalf("ParseEncoding(%q) = %q, %v", in, got, err)
		}
	}
}

func TestInfo(t *testing.T) {
	tbl, err := Load("i.csv", strings.NewReader("a,b\n1,x\n,y\n"), Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	info := tbl.Info()
	for _, want := range []string{"RangeIndex: 2 entries, 0 to 1", "total 2 columns", "1 non-null", "numeric(1)"} {
		if !strings.Contains(info, want) {
			t.Fatalf("info missing %q:\n%s", want, info)
		}
	}
}
