package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbook loads the first worksheet of an XLSX file into a Table.
func ReadWorkbook(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoColumns
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrNoColumns
	}
	return NewTable(rows[0], rows[1:]), nil
}
