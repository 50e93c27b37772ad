package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Encoding names a supported text encoding for delimited files.
type Encoding string

const (
	EncodingUTF8     Encoding = "utf-8"
	EncodingLatin1   Encoding = "latin-1"
	EncodingISO88591 Encoding = "iso-8859-1"
	EncodingCP1252   Encoding = "cp1252"
)

// Options controls how an uploaded file is turned into a Table.
type Options struct {
	// Separator for delimited text. If 0, chosen from the file name (tab for .tsv, comma otherwise).
	Separator rune
	// Encoding of delimited text. Empty means utf-8.
	Encoding Encoding
	// SheetName selects an XLSX sheet; empty means the first sheet.
	SheetName string
	// SampleRows truncates the table to its first N rows; 0 keeps every row.
	SampleRows int
}

// ParseSeparator accepts the separator spellings offered to users.
func ParseSeparator(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	default:
		return 0, fmt.Errorf("unsupported separator: %q (use comma|semicolon|pipe|tab)", s)
	}
}

// ParseEncoding accepts the encoding spellings offered to users.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "latin-1", "latin1":
		return EncodingLatin1, nil
	case "iso-8859-1", "iso8859-1":
		return EncodingISO88591, nil
	case "cp1252", "windows-1252":
		return EncodingCP1252, nil
	default:
		return "", fmt.Errorf("unsupported encoding: %q (use utf-8|latin-1|ISO-8859-1|cp1252)", s)
	}
}

// LoadError is a failure to turn an upload into a Table. It is scoped to the
// current request; the user recovers by changing separator or encoding.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Hint is the suggestion shown next to a load failure.
func (e *LoadError) Hint() string {
	if errors.Is(e.Err, ErrInvalidEncoding) {
		return "the file is not valid in the selected encoding; try latin-1 or cp1252"
	}
	return "check the separator (comma, semicolon, pipe, tab) and the encoding"
}

// ErrInvalidEncoding marks input bytes that do not decode in the selected encoding.
var ErrInvalidEncoding = errors.New("invalid text for encoding")

// Loader turns one file format into a Table.
type Loader interface {
	CanLoad(filename string) bool
	Load(name string, r io.Reader, opt Options) (*Table, error)
}

var registry []Loader

// Register adds a loader to the registry. Later registrations are consulted first.
func Register(l Loader) {
	registry = append([]Loader{l}, registry...)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}

// Load selects a loader by file name and reads r. Unknown extensions are read
// as delimited text.
func Load(filename string, r io.Reader, opt Options) (*Table, error) {
	name := filepath.Base(filename)
	var l Loader = csvLoader{}
	for _, cand := range registry {
		if cand.CanLoad(filename) {
			l = cand
			break
		}
	}
	t, err := l.Load(name, r, opt)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LoadError{Name: name, Err: err}
	}
	if opt.SampleRows > 0 {
		t = t.Head(opt.SampleRows)
	}
	return t, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if opt.Separator == 0 {
		opt.Separator = sniffSeparator(path)
	}
	return Load(path, f, opt)
}

func sniffSeparator(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}
