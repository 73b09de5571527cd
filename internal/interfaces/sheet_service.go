package interfaces

import (
	"context"
	"errors"
)

// ErrSourceUnreadable marks a workbook, worksheet or template that can no
// longer be read. Jobs hitting it fail instead of recording a row error.
var ErrSourceUnreadable = errors.New("source unreadable")

// WorksheetInfo describes one worksheet of an opened workbook
type WorksheetInfo struct {
	Name     string   `json:"name"`
	RowCount int      `json:"row_count"` // Data rows, excluding the header row
	Headers  []string `json:"headers"`
}

// Workbook is an opened spreadsheet
type Workbook interface {
	Path() string
	Worksheets() []WorksheetInfo
	// Row returns the data row at the 0-based index keyed by header name
	Row(ctx context.Context, sheet string, index int) (map[string]string, error)
	Close() error
}

// SheetService opens spreadsheets
type SheetService interface {
	OpenWorkbook(ctx context.Context, path string) (Workbook, error)
}
