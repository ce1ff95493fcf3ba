package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the settings that matter
// when diagnosing a deployment
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("docpipe", GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("badger_path", config.Storage.Badger.Path).
		Str("artifacts_dir", config.Storage.Artifacts.Dir).
		Str("idle_timeout", config.Sessions.IdleTimeout).
		Strs("ocr_languages", config.OCR.Languages).
		Msg("Configuration")
}
