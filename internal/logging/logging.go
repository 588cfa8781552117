package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// LevelTrace is below debug. Opening a container logs every record read at this level.
const LevelTrace = slog.LevelDebug - 4

// Setup configures the global slog logger.
// Console output goes to stderr so commands can stream container content on stdout.
// If logOutputDir is non-empty, logs are also written as JSON to a timestamped file in that directory.
func Setup(levelStr string, logOutputDir string) error {
	logger, err := New(os.Stderr, levelStr, logOutputDir)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New builds the logger Setup installs, writing console output to w.
func New(w io.Writer, levelStr string, logOutputDir string) (*slog.Logger, error) {
	level := ParseLevel(levelStr)

	consoleHandler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.Any() == LevelTrace {
				a.Value = slog.StringValue("TRC")
			}
			return a
		},
	})

	if logOutputDir == "" {
		return slog.New(consoleHandler), nil
	}

	logDir := os.ExpandEnv(logOutputDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("mintypack_%s.log", timestamp))

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})

	fmt.Fprintf(os.Stderr, "Logging to file: %s\n", logFilePath)
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), nil
}

// ParseLevel converts a string log level to slog.Level.
// Unknown levels fall back to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
