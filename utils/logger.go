package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogWriter owns the optional log file so callers can flush it on exit.
type LogWriter struct {
	file *os.File
}

func (w *LogWriter) Dispose() {
	if w.file != nil {
		w.file.Close()
	}
}

// InitLogger applies the logging config to the standard logger and returns
// the root entry services derive their module loggers from.
func InitLogger() (*LogWriter, logrus.FieldLogger) {
	logger := logrus.StandardLogger()
	writer := &LogWriter{}

	if level, err := logrus.ParseLevel(Config.Logging.OutputLevel); err == nil {
		logger.SetLevel(level)
	}
	if Config.Logging.OutputStderr {
		logger.SetOutput(os.Stderr)
	}

	if Config.Logging.FilePath != "" {
		file, err := os.OpenFile(Config.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Errorf("could not open log file %v", Config.Logging.FilePath)
		} else {
			writer.file = file
			fileLevel := logger.GetLevel()
			if level, err := logrus.ParseLevel(Config.Logging.FileLevel); err == nil {
				fileLevel = level
			}
			logger.AddHook(&fileHook{writer: file, level: fileLevel, formatter: &logrus.TextFormatter{DisableColors: true}})
		}
	}

	return writer, logrus.NewEntry(logger)
}

type fileHook struct {
	writer    io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.level+1]
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
