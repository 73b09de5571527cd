package models

import "time"

// Group is one batch run driven by a single workbook and template pairing.
// It owns one Job per processed worksheet; its Status is always derived from
// the statuses of those jobs.
type Group struct {
	ID           string        `json:"id"`
	WorkbookPath string        `json:"workbook_path"`
	TemplatePath string        `json:"template_path"`
	OutputFolder string        `json:"output_folder"`
	TextConfigs  []TextConfig  `json:"text_configs"`
	ImageConfigs []ImageConfig `json:"image_configs"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	JobIDs      []string   `json:"job_ids"`    // Ordered as the worksheets appear in the workbook
	ErrorCount  int        `json:"error_count"` // Sum of child job error counts

	// Progress is derived on read and never persisted as a source of truth
	Progress float64 `json:"progress"`
}

// Clone returns a deep copy safe to hand outside the job store
func (g Group) Clone() Group {
	g.TextConfigs = cloneTextConfigs(g.TextConfigs)
	g.ImageConfigs = cloneImageConfigs(g.ImageConfigs)
	g.JobIDs = append([]string(nil), g.JobIDs...)
	g.CompletedAt = cloneTime(g.CompletedAt)
	return g
}

func cloneTextConfigs(in []TextConfig) []TextConfig {
	if in == nil {
		return nil
	}
	out := make([]TextConfig, len(in))
	for i, c := range in {
		out[i] = TextConfig{Pattern: c.Pattern, Columns: append([]string(nil), c.Columns...)}
	}
	return out
}

func cloneImageConfigs(in []ImageConfig) []ImageConfig {
	if in == nil {
		return nil
	}
	out := make([]ImageConfig, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Columns = append([]string(nil), c.Columns...)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
