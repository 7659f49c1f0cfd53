// Package logging provides structured logging using bolt.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
)

var (
	defaultLogger *bolt.Logger
	once          sync.Once
)

// Config configures a logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string
	// Format is the output format (json or console).
	Format string
	// Output defaults to stdout.
	Output io.Writer
}

// DefaultConfig returns the development configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: os.Stdout}
}

func parseLevel(s string) bolt.Level {
	switch strings.ToLower(s) {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "warn", "warning":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// New builds a logger from cfg.
func New(cfg Config) *bolt.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	var handler bolt.Handler
	if cfg.Format == "json" {
		handler = bolt.NewJSONHandler(output)
	} else {
		handler = bolt.NewConsoleHandler(output)
	}
	return bolt.New(handler).SetLevel(parseLevel(cfg.Level))
}

// Init sets the process logger once. Later calls are ignored.
func Init(cfg Config) *bolt.Logger {
	once.Do(func() {
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

// Get returns the process logger, initializing it with DefaultConfig if
// Init was never called.
func Get() *bolt.Logger {
	return Init(DefaultConfig())
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *bolt.Logger {
	return New(Config{Format: "json", Output: io.Discard, Level: "error"})
}
