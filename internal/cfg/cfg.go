package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelsDir       string
	ModelFilter     string
	DatasetPath     string
	DatasetFormat   string
	LabelColumn     string
	YearColumn      string
	TestFromYear    int
	CalibrationBins int
	ModelTimeout    time.Duration
	RemoteTimeout   time.Duration
	Parallelism     int
	PythonPath      string
	InferenceScript string
	OutputDir       string
	DataPath        string
	DashboardPort   int
	LogLevel        string
}

type ConfigFile struct {
	Models struct {
		Dir             string `yaml:"dir"`
		Filter          string `yaml:"filter"`
		Timeout         string `yaml:"timeout"`
		RemoteTimeout   string `yaml:"remoteTimeout"`
		PythonPath      string `yaml:"pythonPath"`
		InferenceScript string `yaml:"inferenceScript"`
	} `yaml:"models"`

	Dataset struct {
		Path         string `yaml:"path"`
		Format       string `yaml:"format"`
		LabelColumn  string `yaml:"labelColumn"`
		YearColumn   string `yaml:"yearColumn"`
		TestFromYear int    `yaml:"testFromYear"`
	} `yaml:"dataset"`

	Evaluation struct {
		CalibrationBins int `yaml:"calibrationBins"`
		Parallelism     int `yaml:"parallelism"`
	} `yaml:"evaluation"`

	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`

	System struct {
		DataPath      string `yaml:"dataPath"`
		DashboardPort int    `yaml:"dashboardPort"`
		LogLevel      string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Defaults used when neither the config file nor the environment sets a key.
const (
	defaultModelsDir       = "models"
	defaultDatasetPath     = "data/matches.csv"
	defaultDatasetFormat   = "auto"
	defaultLabelColumn     = "label"
	defaultYearColumn      = "year"
	defaultTestFromYear    = 2024
	defaultCalibrationBins = 10
	defaultModelTimeout    = 60 * time.Second
	defaultRemoteTimeout   = 10 * time.Second
	defaultParallelism     = 1
	defaultOutputDir       = "reports"
	defaultDataPath        = "data"
	defaultDashboardPort   = 8080
	defaultLogLevel        = "info"
)

// Load reads a .env file when present, then the YAML file named by
// CONFIG_FILE, falling back to environment variables alone. Environment
// variables always override the file.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		ModelsDir:       getStringFromEnvOrConfig("MODELS_DIR", config.Models.Dir, defaultModelsDir),
		ModelFilter:     getEnvOrDefault("MODEL_FILTER", config.Models.Filter),
		DatasetPath:     getStringFromEnvOrConfig("DATASET_PATH", config.Dataset.Path, defaultDatasetPath),
		DatasetFormat:   getStringFromEnvOrConfig("DATASET_FORMAT", config.Dataset.Format, defaultDatasetFormat),
		LabelColumn:     getStringFromEnvOrConfig("LABEL_COLUMN", config.Dataset.LabelColumn, defaultLabelColumn),
		YearColumn:      getStringFromEnvOrConfig("YEAR_COLUMN", config.Dataset.YearColumn, defaultYearColumn),
		TestFromYear:    getIntFromEnvOrConfig("TEST_FROM_YEAR", config.Dataset.TestFromYear, defaultTestFromYear),
		CalibrationBins: getIntFromEnvOrConfig("CALIBRATION_BINS", config.Evaluation.CalibrationBins, defaultCalibrationBins),
		ModelTimeout:    getDurationFromEnvOrConfig("MODEL_TIMEOUT", config.Models.Timeout, defaultModelTimeout),
		RemoteTimeout:   getDurationFromEnvOrConfig("REMOTE_TIMEOUT", config.Models.RemoteTimeout, defaultRemoteTimeout),
		Parallelism:     getIntFromEnvOrConfig("PARALLELISM", config.Evaluation.Parallelism, defaultParallelism),
		PythonPath:      getEnvOrDefault("PYTHON_PATH", config.Models.PythonPath),
		InferenceScript: getEnvOrDefault("INFERENCE_SCRIPT", config.Models.InferenceScript),
		OutputDir:       getStringFromEnvOrConfig("OUTPUT_DIR", config.Output.Dir, defaultOutputDir),
		DataPath:        getStringFromEnvOrConfig("DATA_PATH", config.System.DataPath, defaultDataPath),
		DashboardPort:   getIntFromEnvOrConfig("DASHBOARD_PORT", config.System.DashboardPort, defaultDashboardPort),
		LogLevel:        getStringFromEnvOrConfig("LOG_LEVEL", config.System.LogLevel, defaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelsDir:       getEnvOrDefault("MODELS_DIR", defaultModelsDir),
		ModelFilter:     os.Getenv("MODEL_FILTER"), // optional
		DatasetPath:     getEnvOrDefault("DATASET_PATH", defaultDatasetPath),
		DatasetFormat:   getEnvOrDefault("DATASET_FORMAT", defaultDatasetFormat),
		LabelColumn:     getEnvOrDefault("LABEL_COLUMN", defaultLabelColumn),
		YearColumn:      getEnvOrDefault("YEAR_COLUMN", defaultYearColumn),
		TestFromYear:    getIntOrDefault("TEST_FROM_YEAR", defaultTestFromYear),
		CalibrationBins: getIntOrDefault("CALIBRATION_BINS", defaultCalibrationBins),
		ModelTimeout:    getDurationOrDefault("MODEL_TIMEOUT", defaultModelTimeout),
		RemoteTimeout:   getDurationOrDefault("REMOTE_TIMEOUT", defaultRemoteTimeout),
		Parallelism:     getIntOrDefault("PARALLELISM", defaultParallelism),
		PythonPath:      os.Getenv("PYTHON_PATH"),      // optional, discovered when empty
		InferenceScript: os.Getenv("INFERENCE_SCRIPT"), // optional, embedded script when empty
		OutputDir:       getEnvOrDefault("OUTPUT_DIR", defaultOutputDir),
		DataPath:        getEnvOrDefault("DATA_PATH", defaultDataPath),
		DashboardPort:   getIntOrDefault("DASHBOARD_PORT", defaultDashboardPort),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// Validate re-checks settings after command-line overrides.
func (s *Settings) Validate() error {
	return validateSettings(s)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getStringFromEnvOrConfig(key, configValue, defaultValue string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			return d
		}
	}
	return defaultValue
}
