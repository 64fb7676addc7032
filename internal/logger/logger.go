package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "mallard").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Ingest creates a logger for event-ingestion path events
func Ingest() *zerolog.Logger { return component("ingest") }

// Store creates a logger for hot/cold storage events
func Store() *zerolog.Logger { return component("store") }

// Query creates a logger for the aggregation/query layer
func Query() *zerolog.Logger { return component("query") }

// Security creates a logger for auth, sessions, API keys, and lockout
func Security() *zerolog.Logger { return component("security") }

// Orchestrator creates a logger for startup, tickers, and shutdown
func Orchestrator() *zerolog.Logger { return component("orchestrator") }

// HTTP creates a logger for HTTP request events
func HTTP() *zerolog.Logger { return component("http") }
