// Package log builds the single *logrus.Entry every other package is
// handed at construction time. There is no facade interface here: the
// teacher's logger package wraps logrus behind one; this launcher instead
// injects *logrus.Entry directly everywhere (app, endpoint, handler,
// web), so the only thing left to centralize is turning the config's
// level/format strings into a configured root entry.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a root *logrus.Entry writing to stderr, with level and format
// taken from the launcher's configuration. An unrecognized level falls
// back to info; an unrecognized format falls back to text.
func New(level, format string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logrus.NewEntry(l)
}
