package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter renders a Table into a single-sheet Excel workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds the workbook with a bold, auto-filtered header row.
func (e *XLSXExporter) Render(table Table, sheet string) ([]byte, error) {
	if len(table.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for col, header := range table.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellStr(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(table.Headers), 1)
	if err != nil {
		return nil, fmt.Errorf("header range: %w", err)
	}
	_ = f.SetCellStyle(sheet, "A1", lastHeader, bold)
	_ = f.AutoFilter(sheet, "A1:"+lastHeader, nil)

	for r, row := range table.Rows {
		for c := range table.Headers {
			if c >= len(row) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellStr(sheet, cell, row[c]); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	// width heuristic based on the header and the first rows
	for c := 1; c <= len(table.Headers); c++ {
		widest := len(table.Headers[c-1])
		for r := 0; r < len(table.Rows) && r < 50; r++ {
			if c-1 < len(table.Rows[r]) && len(table.Rows[r][c-1]) > widest {
				widest = len(table.Rows[r][c-1])
			}
		}
		width := float64(widest) * 0.9
		if width < 12 {
			width = 12
		}
		col, err := excelize.ColumnNumberToName(c)
		if err != nil {
			continue
		}
		_ = f.SetColWidth(sheet, col, col, width)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
