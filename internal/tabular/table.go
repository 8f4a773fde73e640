package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoColumns = errors.New("no delimited header row found")

// delimiters are tried in this order; the first one that splits the header
// into more than one column wins.
var delimiters = []rune{';', ',', '\t', '|'}

// Table is a decoded sheet: a header row plus data rows padded to the
// header width.
type Table struct {
	Columns []string
	Rows    [][]string
	Skipped int
}

// ParseCSV decodes data and splits it into a Table.
func ParseCSV(data []byte) (*Table, error) {
	text, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	header := firstLine(text)
	for _, d := range delimiters {
		if len(strings.Split(header, string(d))) > 1 {
			return readDelimited(text, d)
		}
	}
	return nil, ErrNoColumns
}

func firstLine(text string) string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}

func readDelimited(text string, delimiter rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, ErrNoColumns
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read delimited text: %w", err)
		}
		records = append(records, rec)
	}
	return NewTable(header, records), nil
}

// NewTable trims column names and normalizes row widths. Rows wider than the
// header are dropped and counted in Skipped; blank rows are dropped silently.
func NewTable(header []string, records [][]string) *Table {
	t := &Table{Columns: make([]string, len(header))}
	for i, col := range header {
		t.Columns[i] = strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF"))
	}

	for _, rec := range records {
		if blank(rec) {
			continue
		}
		if len(rec) > len(t.Columns) {
			t.Skipped++
			continue
		}
		row := make([]string, len(t.Columns))
		for i := range rec {
			row[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
