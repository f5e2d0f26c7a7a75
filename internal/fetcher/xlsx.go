package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXText renders every sheet as a "=== Лист name ===" heading followed by
// its non-empty rows, values separated by spaces.
func XLSXText(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: open file")
	}

	var parts []string
	for _, sheet := range f.Sheets {
		parts = append(parts, "=== Лист "+sheet.Name+" ===")
		for _, row := range sheet.Rows {
			var values []string
			for _, v := range rowToStrings(row) {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				parts = append(parts, strings.Join(values, " "))
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell != nil {
			cells[j] = cell.String()
		}
	}
	return cells
}
