package interfaces

import (
	"context"

	"github.com/ternarybob/slidegen/internal/models"
)

// TemplateInfo describes an opened document template
type TemplateInfo struct {
	Path       string   `json:"path"`
	ImageSlots []string `json:"image_slots"`
}

// RowRequest carries everything needed to render one row
type RowRequest struct {
	OutputPath   string
	TemplatePath string
	RowIndex     int
	TextConfigs  []models.TextConfig
	ImageConfigs []models.ImageConfig
	Row          map[string]string
	// Images maps an image slot to the processed local file for this row.
	// Slots without an entry keep their placeholder.
	Images map[string]string
}

// Replacement records one placeholder substitution
type Replacement struct {
	Target string `json:"target"` // Text pattern or image slot
	Value  string `json:"value"`
}

// RowResult summarises the substitutions made for one row
type RowResult struct {
	TextReplacements  []Replacement `json:"text_replacements"`
	ImageReplacements []Replacement `json:"image_replacements"`
	ImageErrors       int           `json:"image_errors"`
	Errors            []string      `json:"errors"`
}

// HasErrors reports whether the row should be counted as failed
func (r RowResult) HasErrors() bool {
	return r.ImageErrors > 0 || len(r.Errors) > 0
}

// SlideService renders rows into the output document.
// ProcessRow must be idempotent per row: a retried row replaces its earlier output.
type SlideService interface {
	OpenTemplate(ctx context.Context, path string) (*TemplateInfo, error)
	ProcessRow(ctx context.Context, req RowRequest) (RowResult, error)
	// Finalize assembles the rendered rows into OutputPath once every row is done
	Finalize(ctx context.Context, outputPath string, rows int) error
}
