package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

type xlsxParser struct{}

func (xlsxParser) CanParse(filename string) bool { return hasSuffix(filename, ".xlsx", ".xlsm") }

// Load reads one sheet. The first non-empty row is the header.
func (xlsxParser) Load(path string, opt Options) (*analysis.Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet, err := pickSheet(wb.GetSheetList(), opt)
	if err != nil {
		return nil, err
	}
	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	f := &analysis.Frame{Name: filepath.Base(path)}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q row: %w", sheet, err)
		}
		if f.Header == nil {
			if blankRow(cols) {
				continue
			}
			f.Header = uniqueHeader(cols)
			continue
		}
		if blankRow(cols) {
			continue
		}
		if opt.MaxRows > 0 && f.NumRows() >= opt.MaxRows {
			f.Truncated = true
			break
		}
		f.AppendRow(cols)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return f, nil
}

func pickSheet(sheets []string, opt Options) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if opt.Sheet != "" {
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", opt.Sheet, strings.Join(sheets, ", "))
	}
	if opt.SheetIndex > 0 {
		if opt.SheetIndex > len(sheets) {
			return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", opt.SheetIndex, len(sheets))
		}
		return sheets[opt.SheetIndex-1], nil
	}
	return sheets[0], nil
}

func blankRow(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
