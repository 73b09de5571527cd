package models

import "strings"

// ROIType selects how the region of interest is chosen when cropping an image
type ROIType string

const (
	ROICenter       ROIType = "center"
	ROIRuleOfThirds ROIType = "rule_of_thirds"
	ROIProminent    ROIType = "prominent"
)

// CropType selects whether the region is cropped to the target size or fitted inside it
type CropType string

const (
	CropCrop CropType = "crop"
	CropFit  CropType = "fit"
)

// Default image target size in pixels
const (
	DefaultImageWidth  = 1200
	DefaultImageHeight = 900
)

// TextConfig replaces Pattern in the template with the first non-blank value
// found in Columns for the current row.
type TextConfig struct {
	Pattern string   `json:"pattern" yaml:"pattern" validate:"required"`
	Columns []string `json:"columns" yaml:"columns" validate:"required,min=1,dive,required"`
}

// ImageConfig fills the template image slot Slot with the image referenced by
// the first non-blank value in Columns (a URL, cloud share link or local path).
type ImageConfig struct {
	Slot    string   `json:"slot" yaml:"slot" validate:"required"`
	Columns []string `json:"columns" yaml:"columns" validate:"required,min=1,dive,required"`
	ROI     ROIType  `json:"roi,omitempty" yaml:"roi" validate:"omitempty,oneof=center rule_of_thirds prominent"`
	Crop    CropType `json:"crop,omitempty" yaml:"crop" validate:"omitempty,oneof=crop fit"`
	Width   int      `json:"width,omitempty" yaml:"width" validate:"omitempty,min=1,max=10000"`
	Height  int      `json:"height,omitempty" yaml:"height" validate:"omitempty,min=1,max=10000"`
}

// WithDefaults returns a copy with zero values replaced by defaults
func (c ImageConfig) WithDefaults() ImageConfig {
	if c.ROI == "" {
		c.ROI = ROICenter
	}
	if c.Crop == "" {
		c.Crop = CropCrop
	}
	if c.Width <= 0 {
		c.Width = DefaultImageWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultImageHeight
	}
	return c
}

// FirstValue returns the first non-blank value for columns in row
func FirstValue(row map[string]string, columns []string) (string, bool) {
	for _, column := range columns {
		if value := strings.TrimSpace(row[column]); value != "" {
			return value, true
		}
	}
	return "", false
}
