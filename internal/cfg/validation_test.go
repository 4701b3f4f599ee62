package cfg

import (
	"strings"
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		ModelsDir:       "models",
		DatasetPath:     "data/matches.csv",
		DatasetFormat:   "auto",
		LabelColumn:     "label",
		YearColumn:      "year",
		TestFromYear:    2024,
		CalibrationBins: 10,
		ModelTimeout:    time.Minute,
		RemoteTimeout:   10 * time.Second,
		Parallelism:     1,
		OutputDir:       "reports",
		DataPath:        "data",
		DashboardPort:   8080,
		LogLevel:        "info",
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"empty models dir", func(s *Settings) { s.ModelsDir = "" }, "models directory"},
		{"empty dataset path", func(s *Settings) { s.DatasetPath = "" }, "dataset path"},
		{"empty output dir", func(s *Settings) { s.OutputDir = "" }, "output directory"},
		{"unknown format", func(s *Settings) { s.DatasetFormat = "xlsx" }, "dataset format"},
		{"same columns", func(s *Settings) { s.YearColumn = "label" }, "must differ"},
		{"missing label column", func(s *Settings) { s.LabelColumn = "" }, "columns are required"},
		{"year too early", func(s *Settings) { s.TestFromYear = 1066 }, "test-from year"},
		{"zero bins", func(s *Settings) { s.CalibrationBins = 0 }, "calibration bins"},
		{"too many bins", func(s *Settings) { s.CalibrationBins = 101 }, "calibration bins"},
		{"zero parallelism", func(s *Settings) { s.Parallelism = 0 }, "parallelism"},
		{"short model timeout", func(s *Settings) { s.ModelTimeout = 10 * time.Millisecond }, "model timeout"},
		{"long remote timeout", func(s *Settings) { s.RemoteTimeout = time.Hour }, "remote timeout"},
		{"privileged port", func(s *Settings) { s.DashboardPort = 80 }, "dashboard port"},
		{"bad log level", func(s *Settings) { s.LogLevel = "chatty" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := settings.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSettings_Boundaries(t *testing.T) {
	settings := createValidSettings()
	settings.CalibrationBins = 1
	settings.Parallelism = 64
	settings.ModelTimeout = time.Second
	settings.RemoteTimeout = 100 * time.Millisecond
	settings.DashboardPort = 65535

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected boundary values to pass, got error: %v", err)
	}
}
