package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listings-pipeline/models"
)

func sampleTable() *models.Table {
	return &models.Table{
		Columns: []string{"url", "Model", "Mileage", "mileage_km", "price_in_eur", "Year of construction"},
		Rows: [][]string{
			{"https://example.com/car/1", "911 Carrera", "98,169 km", "98169.73999999999", "650000", "1973"},
			{"https://example.com/car/2", "007 Special", "1e5", "0.5", "", ""},
			{"https://example.com/car/3", "Boxster, \"S\"", "", "1", "31500.25", "2006"},
		},
	}
}

func TestTableRoundTrip(t *testing.T) {
	for _, ext := range []string{".csv", ".xlsx", ".CSV"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "table"+ext)

			require.NoError(t, WriteTable(path, sampleTable()))
			got, err := ReadTable(path)
			require.NoError(t, err)

			want := sampleTable()
			assert.Equal(t, want.Columns, got.Columns)
			require.Len(t, got.Rows, len(want.Rows))
			for r := range want.Rows {
				for i := range want.Columns {
					assert.Equal(t, want.Rows[r][i], got.Cell(r, i), "row %d column %s", r, want.Columns[i])
				}
			}
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()

	err := WriteTable(filepath.Join(dir, "table.parquet"), sampleTable())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadTable(filepath.Join(dir, "table.json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadCSVToleratesShortRowsAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bronze.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffURL,Title,Mileage\nhttps://example.com/1,911\n"), 0644))

	table, err := ReadTable(path)
	require.NoError(t, err)

	raw, err := models.DecodeRaw(table)
	require.NoError(t, err)
	require.Len(t, raw.Rows, 1)
	assert.Equal(t, "https://example.com/1", raw.Rows[0].URL)
	assert.Nil(t, raw.Rows[0].Mileage)
}

func TestReadEmptyCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}
