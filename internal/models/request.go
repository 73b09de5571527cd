package models

// CreateGroupRequest asks for a new group over a workbook and template
type CreateGroupRequest struct {
	WorkbookPath string        `json:"workbook_path" yaml:"workbook_path" validate:"required"`
	TemplatePath string        `json:"template_path" yaml:"template_path" validate:"required"`
	OutputFolder string        `json:"output_folder" yaml:"output_folder" validate:"required"`
	Sheets       []string      `json:"sheets,omitempty" yaml:"sheets" validate:"omitempty,dive,required"` // Empty means every worksheet
	TextConfigs  []TextConfig  `json:"text_configs" yaml:"text_configs" validate:"dive"`
	ImageConfigs []ImageConfig `json:"image_configs" yaml:"image_configs" validate:"dive"`
}

// GroupDetail is a group together with its jobs
type GroupDetail struct {
	Group Group `json:"group"`
	Jobs  []Job `json:"jobs"`
}
