package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. format is "json" or "text".
func New(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func WithComponent(l logrus.FieldLogger, component string) *logrus.Entry {
	return l.WithField("component", component)
}

func WithJob(l logrus.FieldLogger, jobID string) *logrus.Entry {
	return l.WithField("job_id", jobID)
}

func WithEpisode(l logrus.FieldLogger, episodeID string) *logrus.Entry {
	return l.WithField("episode_id", episodeID)
}
