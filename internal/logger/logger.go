package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const megabyte = 1024 * 1024

// Logger wraps zerolog.Logger with module-scoped children and a rotating file
type Logger struct {
	logger       zerolog.Logger
	level        zerolog.Level
	file         *RotatingWriter
	redactor     *Redactor
	debug        bool
	debugModules map[string]bool
}

// Config holds logger configuration
type Config struct {
	Level        string   `json:"level" mapstructure:"level"`                 // debug, info, warn, error
	File         string   `json:"file" mapstructure:"file"`                   // log file path, empty disables file output
	Console      bool     `json:"console" mapstructure:"console"`             // enable console output
	Pretty       bool     `json:"pretty" mapstructure:"pretty"`               // pretty format for console
	Redaction    bool     `json:"redaction" mapstructure:"redaction"`         // enable sensitive data redaction
	MaxSize      int      `json:"max_size" mapstructure:"max_size"`           // max size in MB before rotation
	MaxBackups   int      `json:"max_backups" mapstructure:"max_backups"`     // rotated files to keep
	Compress     bool     `json:"compress" mapstructure:"compress"`           // gzip rotated logs
	Debug        bool     `json:"debug" mapstructure:"debug"`                 // every module at debug
	DebugModules []string `json:"debug_modules" mapstructure:"debug_modules"` // only these modules at debug
}

// New creates a new logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var consoleWriter io.Writer = os.Stderr
		if cfg.Pretty {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, consoleWriter)
	}

	var file *RotatingWriter
	if cfg.File != "" {
		maxSize := int64(cfg.MaxSize) * megabyte
		if maxSize <= 0 {
			maxSize = megabyte
		}
		file, err = NewRotatingWriter(cfg.File, maxSize, cfg.MaxBackups, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		writer = redactor.Wrap(writer)
	}

	base := zerolog.New(writer).With().Timestamp().Logger()

	debugModules := make(map[string]bool, len(cfg.DebugModules))
	for _, m := range cfg.DebugModules {
		if m = strings.TrimSpace(m); m != "" {
			debugModules[m] = true
		}
	}

	effective := level
	if cfg.Debug && level > zerolog.DebugLevel {
		effective = zerolog.DebugLevel
	}

	l := &Logger{
		logger:       base.Level(effective),
		level:        effective,
		file:         file,
		redactor:     redactor,
		debug:        cfg.Debug,
		debugModules: debugModules,
	}

	log.Logger = l.logger

	return l, nil
}

// Module returns a child logger tagged with module=name. With --debug every
// module logs at debug; with --debug-modules only the named ones do.
func (l *Logger) Module(name string) zerolog.Logger {
	lvl := l.level
	if l.debugModules[name] && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	return l.logger.Level(lvl).With().Str("module", name).Logger()
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		File:       "quinn.log",
		Console:    true,
		Pretty:     true,
		Redaction:  true,
		MaxSize:    1,
		MaxBackups: 3,
		Compress:   false,
	}
}
