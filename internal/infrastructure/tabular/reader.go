// Package tabular reads POS transaction exports (XLSX workbooks and CSV
// files) into raw sale rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"posrecon/internal/domain/sale"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptySheet        = errors.New("sheet has no data rows")
)

// stopMarker is the item-sold label of the export's grand total row.
const stopMarker = "total"

// Sheet is the raw content of one export file.
type Sheet struct {
	Batch string
	Rows  []sale.RawRow
}

// ReadFile reads an .xlsx or .csv export. The batch label is the file name
// without its extension.
func ReadFile(path string, layout Layout) (*Sheet, error) {
	batch := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, batch, layout)
	case ".csv":
		return ReadCSV(f, batch, layout)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ReadXLSX reads the first sheet of a workbook using the layout's columns.
// Cells are read raw so dates arrive as Excel serials rather than in the
// workbook's display format.
func ReadXLSX(r io.Reader, batch string, layout Layout) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", batch, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s: %w", batch, ErrEmptySheet)
	}

	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheets[0], batch, err)
	}

	return extract(grid, batch, layout.HeaderRow, layout.Columns), nil
}

// ReadCSV reads a CSV export. When the first record names the item sold and
// a date column, fields are addressed by header; otherwise the layout's
// header row and columns apply.
func ReadCSV(r io.Reader, batch string, layout Layout) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", batch, err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("csv %s: %w", batch, ErrEmptySheet)
	}

	cols := headerColumns(grid[0])
	_, hasItem := cols[sale.FieldItemSold]
	_, hasDate := cols[sale.FieldCheckoutDate]
	if hasItem && hasDate {
		return extract(grid, batch, 1, cols), nil
	}
	return extract(grid, batch, layout.HeaderRow, layout.Columns), nil
}

// extract turns grid rows below headerRow into raw rows. Blank rows are
// skipped and reading stops at the grand total row.
func extract(grid [][]string, batch string, headerRow int, cols map[sale.Field]int) *Sheet {
	sheet := &Sheet{Batch: batch}

	for i := headerRow; i < len(grid); i++ {
		record := grid[i]

		fields := make(map[sale.Field]string, len(cols))
		blank := true
		for field, col := range cols {
			if col < 1 || col > len(record) {
				continue
			}
			v := strings.TrimSpace(record[col-1])
			if v == "" {
				continue
			}
			fields[field] = v
			blank = false
		}
		if blank {
			continue
		}

		if strings.ToLower(fields[sale.FieldItemSold]) == stopMarker {
			break
		}

		sheet.Rows = append(sheet.Rows, sale.RawRow{
			Batch:     batch,
			RowNumber: i + 1,
			Fields:    fields,
		})
	}

	return sheet
}
