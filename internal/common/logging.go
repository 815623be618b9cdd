package common

import (
	"fmt"
	"os"
	"path/filepath"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// NewLogger builds the arbor logger described by the logging config.
// Console output is used when no output is configured.
func NewLogger(config LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFile := false
	hasConsole := false
	for _, output := range config.Outputs {
		switch output {
		case "file":
			hasFile = true
		case "console", "stdout":
			hasConsole = true
		}
	}

	if hasFile && config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   config.FilePath,
				TimeFormat: "15:04:05",
				MaxSize:    100 * 1024 * 1024, // 100 MB
				MaxBackups: 3,
				OutputType: models.OutputFormatLogfmt,
			})
		}
	}

	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: "15:04:05",
		})
	}

	level := config.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}

// NewDefaultLogger creates a console logger at info level
func NewDefaultLogger() arbor.ILogger {
	return NewLogger(LoggingConfig{Level: "info", Outputs: []string{"console"}})
}

// NewSilentLogger creates a logger that discards all output. It carries its
// own writer so globally registered console and file writers are bypassed.
func NewSilentLogger() arbor.ILogger {
	return arbor.NewLogger().WithWriters([]writers.IWriter{discardWriter{}})
}

// discardWriter is an arbor writer that drops every event
type discardWriter struct{}

func (w discardWriter) WithLevel(level plog.Level) writers.IWriter { return w }
func (discardWriter) Write(p []byte) (int, error)                   { return len(p), nil }
func (discardWriter) GetFilePath() string                           { return "" }
func (discardWriter) Close() error                                  { return nil }
