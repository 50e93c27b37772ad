package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type csvLoader struct{}

func (csvLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

func (csvLoader) Load(name string, r io.Reader, opt Options) (*Table, error) {
	dec, err := decoderFor(opt.Encoding)
	if err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	sep := opt.Separator
	if sep == 0 {
		sep = sniffSeparator(name)
	}
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = sep

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return FromRecords(name, nil, nil)
		}
		return nil, &LoadError{Name: name, Err: fmt.Errorf("read header: %w", err)}
	}
	header = append([]string(nil), header...)
	checkUTF8 := opt.Encoding == "" || opt.Encoding == EncodingUTF8
	if checkUTF8 {
		if err := validUTF8(header, 0); err != nil {
			return nil, &LoadError{Name: name, Err: err}
		}
	}
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &LoadError{Name: name, Err: fmt.Errorf("read row %d: %w", len(rows)+1, err)}
		}
		if len(rec) > len(header) {
			return nil, &LoadError{Name: name, Err: fmt.Errorf("row %d has %d fields, header has %d", len(rows)+1, len(rec), len(header))}
		}
		if checkUTF8 {
			if err := validUTF8(rec, len(rows)+1); err != nil {
				return nil, &LoadError{Name: name, Err: err}
			}
		}
		rows = append(rows, rec)
	}
	return FromRecords(name, header, rows)
}

func validUTF8(fields []string, row int) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return fmt.Errorf("%w utf-8 at row %d", ErrInvalidEncoding, row)
		}
	}
	return nil
}

func decoderFor(e Encoding) (transform.Transformer, error) {
	var enc encoding.Encoding
	switch e {
	case "", EncodingUTF8:
		// Strips a leading BOM; invalid sequences are reported by validUTF8.
		return unicode.BOMOverride(transform.Nop), nil
	case EncodingLatin1, EncodingISO88591:
		enc = charmap.ISO8859_1
	case EncodingCP1252:
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported encoding: %q", e)
	}
	return enc.NewDecoder(), nil
}
