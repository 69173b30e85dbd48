package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultForecastPattern matches "<model>_pDDMMYYaDDMMYY.dat" forecast files.
const DefaultForecastPattern = `^.+_p(?P<issue>\d{6})a(?P<horizon>\d{6})\.dat$`

// Output formats accepted by OUTPUT_FORMAT.
const (
	FormatPretty = "pretty"
	FormatCSV    = "csv"
	FormatJSON   = "json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ContourFile     string
	ForecastDir     string
	ForecastPattern *regexp.Regexp
	OutputFormat    string
	OutputFile      string

	LogLevel        string
	LogFormat       string
	RunInterval     time.Duration
	HTTPAddr        string
	ShutdownTimeout time.Duration

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Mapbox reverse geocoding for the region label.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// ServiceMode reports whether the pipeline should rerun on an interval
// behind the HTTP server instead of running once.
func (c *Config) ServiceMode() bool {
	return c.RunInterval > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err := time.ParseDuration(mapboxTimeoutStr)
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	runInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RUN_INTERVAL", "0s"))
	if err != nil || runInterval < 0 {
		return nil, errors.New("invalid RUN_INTERVAL")
	}

	pattern, err := parseForecastPattern(sharedcfg.EnvOrDefault("FORECAST_PATTERN", DefaultForecastPattern))
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		ContourFile:     os.Getenv("CONTOUR_FILE"),
		ForecastDir:     sharedcfg.EnvOrDefault("FORECAST_DIR", "forecast_files"),
		ForecastPattern: pattern,
		OutputFormat:    sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatPretty),
		OutputFile:      os.Getenv("OUTPUT_FILE"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		RunInterval:     runInterval,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "precipitation-reports"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.ContourFile == "" {
		return nil, errors.New("CONTOUR_FILE is required")
	}
	switch cfg.OutputFormat {
	case FormatPretty, FormatCSV, FormatJSON:
	default:
		return nil, fmt.Errorf("invalid OUTPUT_FORMAT %q: want pretty, csv or json", cfg.OutputFormat)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseForecastPattern(s string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_PATTERN: %w", err)
	}
	if re.NumSubexp() < 2 {
		return nil, fmt.Errorf("invalid FORECAST_PATTERN: need 2 capture groups (issue, horizon), got %d", re.NumSubexp())
	}
	return re, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 100
}
