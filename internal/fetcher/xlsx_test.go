package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSXText(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Спецификация": {
			{"Адрес", "Площадь, м2", "Этаж"},
			{"г. Казань, ул. Чистопольская, 20", "42,5", "3"},
			{"", " ", ""},
		},
	})

	text, err := XLSXText(path)
	require.NoError(t, err)
	assert.Equal(t,
		"=== Лист Спецификация ===\n"+
			"Адрес Площадь, м2 Этаж\n"+
			"г. Казань, ул. Чистопольская, 20 42,5 3",
		text)
}

func TestXLSXText_NotAWorkbook(t *testing.T) {
	path := createTestZIP(t, map[string]string{"readme.txt": "nothing"})
	_, err := XLSXText(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestRowToStrings_Nil(t *testing.T) {
	assert.Nil(t, rowToStrings(nil))
}
