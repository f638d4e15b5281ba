// Package applog builds the single zap.Logger instance threaded through
// every component by dependency injection, and prints the optional
// startup banner. Grounded on the teacher's cmd/sentinel/main.go
// printUsage banner and on original_source/src/logging/mod.rs's
// "one logger, built once, passed down" shape.
package applog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// banner is printed once at startup when log.logo is true. Content is
// cosmetic; it exists purely so operators confirm the right binary
// started, the same role the teacher's printUsage banner plays.
const banner = `
  concentrator
  transparent proxy in front of a sentinel-managed kv store
`

// New builds a production zap.Logger, or a development one (human
// readable, debug level) when debug is true.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// PrintBanner writes the startup banner to stdout when show is true.
func PrintBanner(show bool) {
	if show {
		fmt.Println(banner)
	}
}
