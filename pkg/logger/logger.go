// Package logx configures the process-wide zerolog logger and exposes thin
// event constructors so callers never import zerolog's global directly.
package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finsight-core-v1/server/internal/core"
)

type LoggerOpts struct {
	Environment core.Environment
	// Level overrides the environment default when non-empty
	// (trace, debug, info, warn, error).
	Level string
}

// Init replaces the global logger according to the environment: structured
// JSON at info level in production, a console writer at debug level
// everywhere else, and warn-only in tests to keep output readable.
func Init(opts LoggerOpts) {
	var logger zerolog.Logger
	switch opts.Environment {
	case core.Production:
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	case core.Testing:
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	default:
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Caller().Logger().Level(zerolog.DebugLevel)
	}

	if opts.Level != "" {
		if lvl, err := zerolog.ParseLevel(opts.Level); err == nil {
			logger = logger.Level(lvl)
		}
	}

	log.Logger = logger
}

// Component returns a child logger tagged with a component name, for
// packages that emit many related events.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }

func Info() *zerolog.Event { return log.Info() }

func Warn() *zerolog.Event { return log.Warn() }

func Error() *zerolog.Event { return log.Error() }

func Fatal() *zerolog.Event { return log.Fatal() }
