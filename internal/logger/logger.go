package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options controls logger construction.
type Options struct {
	Level  string
	Pretty bool
	Output io.Writer
}

// Init initializes the global logger
func Init(level string) {
	InitWithOptions(Options{
		Level:  level,
		Pretty: os.Getenv("ENV") == "development",
	})
}

// InitWithOptions initializes the global logger from explicit options.
func InitWithOptions(opts Options) {
	logLevel, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithChannel returns a component logger scoped to one monitored channel
func WithChannel(component, channel string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("channel", channel).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}
