// Package slogging provides the process-wide logger for the collaboration
// service. It wraps log/slog with printf-style level methods and optional
// rotating file output.
package slogging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents logging verbosity
type LogLevel int

const (
	// LogLevelDebug includes detailed debug information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo includes general operational information
	LogLevelInfo
	// LogLevelWarn includes warnings and errors only
	LogLevelWarn
	// LogLevelError includes only errors
	LogLevelError
)

var (
	globalLogger *Logger
	// Default log file location
	defaultLogDir = "logs"
)

// Logger is the slog-based logging component
type Logger struct {
	slogger    *slog.Logger
	level      LogLevel
	isDev      bool
	fileLogger *lumberjack.Logger
}

// Config holds configuration options for the logger
type Config struct {
	// Level is the minimum log level to output
	Level LogLevel
	// IsDev selects the human-readable text handler over JSON
	IsDev bool
	// LogDir is the directory to store log files; empty disables file output
	LogDir string
	// MaxAgeDays is the maximum number of days to retain logs
	MaxAgeDays int
	// MaxSizeMB is the maximum size of a log file in MB before rotation
	MaxSizeMB int
	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int
	// AlsoLogToConsole controls if logs also go to stdout
	AlsoLogToConsole bool
}

// ParseLogLevel converts a string log level to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) toSlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new slog-based logger instance
func NewLogger(config Config) (*Logger, error) {
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = 7
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 100
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 10
	}

	var fileLogger *lumberjack.Logger
	var writer io.Writer = os.Stdout

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileLogger = &lumberjack.Logger{
			Filename:   filepath.Join(config.LogDir, "collab.log"),
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		if config.AlsoLogToConsole {
			writer = io.MultiWriter(os.Stdout, fileLogger)
		} else {
			writer = fileLogger
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if config.IsDev {
		handler = slog.NewTextHandler(writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	}

	return &Logger{
		slogger:    slog.New(handler),
		level:      config.Level,
		isDev:      config.IsDev,
		fileLogger: fileLogger,
	}, nil
}

// Initialize sets up the global logger
func Initialize(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	globalLogger = logger
	slog.SetDefault(logger.slogger)
	return nil
}

// Get returns the global logger instance, initializing with defaults if needed
func Get() *Logger {
	if globalLogger == nil {
		logDir := os.Getenv("COLLAB_LOG_DIR")
		err := Initialize(Config{
			Level:            LogLevelInfo,
			LogDir:           logDir,
			AlsoLogToConsole: true,
		})
		if err != nil {
			handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			})
			globalLogger = &Logger{
				slogger: slog.New(handler),
				level:   LogLevelInfo,
			}
		}
	}
	return globalLogger
}

// Close properly closes the logger
func (l *Logger) Close() error {
	if l.fileLogger != nil {
		return l.fileLogger.Close()
	}
	return nil
}

// Debug logs a debug-level message
// Log messages are sanitized to prevent log injection attacks (CWE-117)
func (l *Logger) Debug(format string, args ...any) {
	if l.level > LogLevelDebug {
		return
	}
	l.slogger.Debug(l.format(format, args))
}

// Info logs an info-level message
// Log messages are sanitized to prevent log injection attacks (CWE-117)
func (l *Logger) Info(format string, args ...any) {
	if l.level > LogLevelInfo {
		return
	}
	l.slogger.Info(l.format(format, args))
}

// Warn logs a warning-level message
// Log messages are sanitized to prevent log injection attacks (CWE-117)
func (l *Logger) Warn(format string, args ...any) {
	if l.level > LogLevelWarn {
		return
	}
	l.slogger.Warn(l.format(format, args))
}

// Error logs an error-level message
// Log messages are sanitized to prevent log injection attacks (CWE-117)
func (l *Logger) Error(format string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	l.slogger.Error(l.format(format, args))
}

func (l *Logger) format(format string, args []any) string {
	var message string
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	} else {
		message = format
	}
	return SanitizeLogMessage(message)
}

// SanitizeLogMessage strips newlines and carriage returns from a message so
// untrusted input cannot forge additional log records.
func SanitizeLogMessage(message string) string {
	message = strings.ReplaceAll(message, "\n", "\\n")
	message = strings.ReplaceAll(message, "\r", "\\r")
	return message
}
