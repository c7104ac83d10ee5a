package shared

import (
	"fmt"
	"io"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/config"
)

// Loggers bundles the zerolog logger used by the engine with the charm logger
// used by the websocket transport. Both write to the same sink.
type Loggers struct {
	Log       zerolog.Logger
	Transport *charmlog.Logger

	closer io.Closer
}

// Close releases the log file, if any.
func (l *Loggers) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// SetupLogger configures logging from cfg. Console output is the pretty
// zerolog writer; json emits one structured event per line. debug overrides
// the configured level.
func SetupLogger(cfg config.Log, debug bool) (*Loggers, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if debug {
		level = zerolog.DebugLevel
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	var logger zerolog.Logger
	transport := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		Level:           charmLevel(level),
	})
	switch cfg.Format {
	case "json":
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = zerolog.New(out)
		transport.SetFormatter(charmlog.JSONFormatter)
	default:
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: cfg.File != ""})
	}

	return &Loggers{
		Log:       logger.Level(level).With().Timestamp().Logger(),
		Transport: transport,
		closer:    closer,
	}, nil
}

func charmLevel(level zerolog.Level) charmlog.Level {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return charmlog.DebugLevel
	case zerolog.WarnLevel:
		return charmlog.WarnLevel
	case zerolog.ErrorLevel:
		return charmlog.ErrorLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return charmlog.FatalLevel
	default:
		return charmlog.InfoLevel
	}
}
