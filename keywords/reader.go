package keywords

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/seo-optimizer/competitor/errs"
)

// MaxSourceBytes bounds the size of an uploaded or on-disk keyword source
const MaxSourceBytes = 64 << 20

var errTooLarge = errors.New("keyword source is too large")

// LoadFile reads a CSV, TSV or XLSX export from disk
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Input("load keywords", err)
	}
	defer f.Close()
	return LoadReader(f, filepath.Base(path))
}

// LoadReader reads a keyword source, choosing the format by file name
func LoadReader(r io.Reader, name string) (*Dataset, error) {
	var (
		t   Table
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		t, err = ReadXLSX(r)
	case ".csv", ".tsv", ".txt", "":
		t, err = ReadCSV(r)
	default:
		return nil, errs.Inputf("load keywords", "unsupported file type %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	return Load(t)
}

// ReadCSV reads delimited text. UTF-8 (with or without BOM) and UTF-16
// with BOM are decoded; other invalid UTF-8 is read as Latin-1. The
// delimiter (comma, tab or semicolon) is sniffed from the header line.
func ReadCSV(r io.Reader) (Table, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return Table{}, errs.Input("read csv", err)
	}
	if len(raw) > MaxSourceBytes {
		return Table{}, errs.Input("read csv", errTooLarge)
	}

	text, err := decodeText(raw)
	if err != nil {
		return Table{}, errs.Input("read csv", err)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = sniffDelimiter(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, errs.Input("read csv", err)
	}
	return toTable(records)
}

func decodeText(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", fmt.Errorf("decode utf-16: %w", err)
		}
		return string(out), nil
	case utf8.Valid(raw):
		return string(raw), nil
	default:
		out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), raw)
		if err != nil {
			return "", fmt.Errorf("decode latin-1: %w", err)
		}
		return string(out), nil
	}
}

// sniffDelimiter picks the most frequent candidate in the first line
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// ReadXLSX reads the first worksheet of an Excel workbook
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(io.LimitReader(r, MaxSourceBytes))
	if err != nil {
		return Table{}, errs.Input("read xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errs.Inputf("read xlsx", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, errs.Input("read xlsx", err)
	}
	return toTable(rows)
}

// toTable splits records into header and rows, skipping leading blank lines
func toTable(records [][]string) (Table, error) {
	for i, rec := range records {
		if isBlankRow(rec) {
			continue
		}
		return Table{Header: rec, Rows: records[i+1:]}, nil
	}
	return Table{}, errs.Inputf("read keywords", "source is empty")
}
