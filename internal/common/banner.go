package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved runtime settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Slidegen", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("storage", config.Storage.Type).
		Int("max_concurrent_jobs", config.Jobs.MaxConcurrentJobs).
		Str("work_dir", config.Jobs.WorkDir).
		Msg("Slidegen starting")
}
