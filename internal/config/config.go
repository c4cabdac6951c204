package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/QTest-hq/callwithmax/pkg/callmax"
)

// Engine names
const (
	EngineNative = "native"
	EngineSource = "source"
)

// Config holds all application configuration
type Config struct {
	// Logging
	LogLevel string

	// How the generic form reports its result: return or literal
	ResultMode callmax.ResultMode

	// Which engine runs the steps: native or source
	Engine string

	// Optional C++ source for the source engine and emitter
	SourcePath string

	// Optional scenario file
	ScenarioPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:     getEnv("CALLWITHMAX_LOG_LEVEL", "warn"),
		ResultMode:   callmax.ResultMode(getEnv("CALLWITHMAX_RESULT_MODE", string(callmax.ResultReturn))),
		Engine:       getEnv("CALLWITHMAX_ENGINE", EngineNative),
		SourcePath:   getEnv("CALLWITHMAX_SOURCE", ""),
		ScenarioPath: getEnv("CALLWITHMAX_SCENARIO", ""),
	}

	return cfg, nil
}

// Validate checks that enumerated settings hold known values
func (c *Config) Validate() error {
	if !c.ResultMode.Valid() {
		return fmt.Errorf("unknown result mode %q (want %s or %s)", c.ResultMode, callmax.ResultReturn, callmax.ResultLiteral)
	}

	if c.Engine != EngineNative && c.Engine != EngineSource {
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineNative, EngineSource)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses LogLevel
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
