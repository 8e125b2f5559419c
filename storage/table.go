package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"listings-pipeline/models"
)

// ErrUnsupportedFormat is returned for table paths whose extension has no reader or writer.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// ReadTable loads a stage table, choosing the format from the file extension.
func ReadTable(path string) (*models.Table, error) {
	switch ext(path) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	}
	return nil, fmt.Errorf("storage: read %q: %w", path, ErrUnsupportedFormat)
}

// WriteTable persists a stage table, creating parent directories as needed.
func WriteTable(path string, t *models.Table) error {
	e := ext(path)
	if e != ".csv" && e != ".xlsx" {
		return fmt.Errorf("storage: write %q: %w", path, ErrUnsupportedFormat)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("storage: create output dir: %w", err)
	}
	if e == ".xlsx" {
		return writeXLSX(path, t)
	}
	return writeCSV(path, t)
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
