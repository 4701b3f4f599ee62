package cfg

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate locations
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.DatasetPath == "" {
		return fmt.Errorf("dataset path cannot be empty")
	}
	if settings.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	// Validate dataset layout
	switch settings.DatasetFormat {
	case "csv", "boltdb", "auto":
	default:
		return fmt.Errorf("dataset format must be csv, boltdb or auto, got %q", settings.DatasetFormat)
	}
	if settings.LabelColumn == "" || settings.YearColumn == "" {
		return fmt.Errorf("label and year columns are required")
	}
	if settings.LabelColumn == settings.YearColumn {
		return fmt.Errorf("label and year columns must differ, both are %q", settings.LabelColumn)
	}
	if settings.TestFromYear < 1900 || settings.TestFromYear > 2100 {
		return fmt.Errorf("test-from year must be between 1900 and 2100, got %d", settings.TestFromYear)
	}

	// Validate evaluation parameters
	if settings.CalibrationBins < 1 || settings.CalibrationBins > 100 {
		return fmt.Errorf("calibration bins must be between 1 and 100, got %d", settings.CalibrationBins)
	}
	if settings.Parallelism < 1 || settings.Parallelism > 64 {
		return fmt.Errorf("parallelism must be between 1 and 64, got %d", settings.Parallelism)
	}

	// Validate time durations
	if settings.ModelTimeout < time.Second || settings.ModelTimeout > time.Hour {
		return fmt.Errorf("model timeout must be between 1s and 1h, got %v", settings.ModelTimeout)
	}
	if settings.RemoteTimeout < 100*time.Millisecond || settings.RemoteTimeout > 5*time.Minute {
		return fmt.Errorf("remote timeout must be between 100ms and 5m, got %v", settings.RemoteTimeout)
	}

	// Validate server settings
	if settings.DashboardPort < 1024 || settings.DashboardPort > 65535 {
		return fmt.Errorf("dashboard port must be between 1024 and 65535, got %d", settings.DashboardPort)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
