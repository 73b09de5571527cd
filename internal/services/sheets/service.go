package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/slidegen/internal/interfaces"
)

// Service implements interfaces.SheetService for xlsx workbooks
type Service struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.SheetService = (*Service)(nil)

// NewService creates a new sheet service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// OpenWorkbook reads every worksheet of the workbook at path. The first row
// of a worksheet holds the headers; fully blank rows are skipped.
func (s *Service) OpenWorkbook(ctx context.Context, path string) (interfaces.Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: workbook %s: %v", interfaces.ErrSourceUnreadable, path, err)
	}
	defer f.Close()

	wb := &workbook{
		path:   path,
		sheets: make(map[string]*sheet),
	}

	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: worksheet %s: %v", interfaces.ErrSourceUnreadable, name, err)
		}
		sh := parseSheet(raw)
		wb.sheets[name] = sh
		wb.infos = append(wb.infos, interfaces.WorksheetInfo{
			Name:     name,
			RowCount: len(sh.rows),
			Headers:  sh.headers,
		})
	}

	s.logger.Debug().
		Str("path", path).
		Int("worksheets", len(wb.infos)).
		Msg("Workbook opened")
	return wb, nil
}

type sheet struct {
	headers []string
	rows    [][]string
}

// parseSheet splits raw cell values into headers and non-blank data rows.
// Blank headers are named after their column letter; the first of a
// duplicated header wins.
func parseSheet(raw [][]string) *sheet {
	sh := &sheet{}
	if len(raw) == 0 {
		return sh
	}

	for i, cell := range raw[0] {
		header := strings.TrimSpace(cell)
		if header == "" {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				continue
			}
			header = name
		}
		sh.headers = append(sh.headers, header)
	}

	for _, row := range raw[1:] {
		if isBlank(row) {
			continue
		}
		sh.rows = append(sh.rows, row)
	}
	return sh
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

type workbook struct {
	path   string
	infos  []interfaces.WorksheetInfo
	mu     sync.RWMutex
	sheets map[string]*sheet
	closed bool
}

func (w *workbook) Path() string {
	return w.path
}

func (w *workbook) Worksheets() []interfaces.WorksheetInfo {
	return append([]interfaces.WorksheetInfo(nil), w.infos...)
}

// Row returns the data row at index keyed by header
func (w *workbook) Row(ctx context.Context, name string, index int) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, fmt.Errorf("%w: workbook %s is closed", interfaces.ErrSourceUnreadable, w.path)
	}
	sh, ok := w.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: worksheet %s not found", interfaces.ErrSourceUnreadable, name)
	}
	if index < 0 || index >= len(sh.rows) {
		return nil, fmt.Errorf("%w: worksheet %s has no row %d", interfaces.ErrSourceUnreadable, name, index+1)
	}

	values := sh.rows[index]
	row := make(map[string]string, len(sh.headers))
	for i, header := range sh.headers {
		if _, dup := row[header]; dup {
			continue
		}
		if i < len(values) {
			row[header] = values[i]
		} else {
			row[header] = ""
		}
	}
	return row, nil
}

func (w *workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.sheets = nil
	return nil
}
