package tabular

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first sheet of a workbook.
func readXLSX(path string) (table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return table{}, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, fmt.Errorf("%w: workbook has no sheets", errEmpty)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, err
	}
	if len(rows) == 0 {
		return table{}, fmt.Errorf("%w: sheet %s is empty", errEmpty, sheets[0])
	}
	return table{header: rows[0], rows: rows[1:]}, nil
}

func writeXLSX(path string, t table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	const sheet = "Sheet1"

	write := func(r int, vals []string) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}
	if err := write(1, t.header); err != nil {
		return err
	}
	for i, r := range t.rows {
		if err := write(i+2, r); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
