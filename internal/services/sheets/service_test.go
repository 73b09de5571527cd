package sheets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/slidegen/internal/interfaces"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "North"))
	require.NoError(t, f.SetSheetRow("North", "A1", &[]interface{}{"name", "", "name", "image"}))
	require.NoError(t, f.SetSheetRow("North", "A2", &[]interface{}{"Alice", "x", "shadow", "https://example.com/a.png"}))
	require.NoError(t, f.SetSheetRow("North", "A4", &[]interface{}{"Bob"}))

	_, err := f.NewSheet("Empty")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestService_OpenWorkbook(t *testing.T) {
	service := NewService(arbor.NewLogger())
	wb, err := service.OpenWorkbook(t.Context(), writeWorkbook(t))
	require.NoError(t, err)
	defer wb.Close()

	sheets := wb.Worksheets()
	require.Len(t, sheets, 2)
	assert.Equal(t, "North", sheets[0].Name)
	assert.Equal(t, 2, sheets[0].RowCount, "blank rows are skipped")
	assert.Equal(t, []string{"name", "B", "name", "image"}, sheets[0].Headers)
	assert.Equal(t, "Empty", sheets[1].Name)
	assert.Zero(t, sheets[1].RowCount)

	row, err := wb.Row(t.Context(), "North", 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Alice", "B": "x", "image": "https://example.com/a.png"}, row)

	row, err = wb.Row(t.Context(), "North", 1)
	require.NoError(t, err)
	assert.Equal(t, "Bob", row["name"])
	assert.Equal(t, "", row["image"], "short rows are padded")
}

func TestService_RowErrors(t *testing.T) {
	service := NewService(arbor.NewLogger())
	wb, err := service.OpenWorkbook(t.Context(), writeWorkbook(t))
	require.NoError(t, err)

	_, err = wb.Row(t.Context(), "North", 5)
	assert.ErrorIs(t, err, interfaces.ErrSourceUnreadable)

	_, err = wb.Row(t.Context(), "Missing", 0)
	assert.ErrorIs(t, err, interfaces.ErrSourceUnreadable)

	require.NoError(t, wb.Close())
	_, err = wb.Row(t.Context(), "North", 0)
	assert.ErrorIs(t, err, interfaces.ErrSourceUnreadable)
}

func TestService_OpenWorkbookUnreadable(t *testing.T) {
	service := NewService(arbor.NewLogger())
	_, err := service.OpenWorkbook(t.Context(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, interfaces.ErrSourceUnreadable)
}
