// Package logging builds the process logger: console text output plus an optional
// size-rotated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// fileHook writes every entry to a rotated file with a plain formatter.
type fileHook struct {
	formatter logrus.Formatter
	writer    io.WriteCloser
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// Logger is the process logger plus the closer for its file sink.
type Logger struct {
	*logrus.Logger
	hook *fileHook
}

// New builds a logger writing to out and, when cfg.File is set, to a lumberjack file.
func New(cfg config.LogConfig, out io.Writer) (*Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        timestampFormat,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})

	l := &Logger{Logger: log}
	if cfg.File == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	l.hook = &fileHook{
		writer: &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		},
	}
	log.AddHook(l.hook)
	return l, nil
}

// Close flushes and closes the rotated file, if any.
func (l *Logger) Close() error {
	if l == nil || l.hook == nil {
		return nil
	}
	return l.hook.writer.Close()
}

// Discard returns a logger that drops everything. Used when a component is built without one.
func Discard() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Discard()
	}
	return log
}
