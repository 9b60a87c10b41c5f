package revent

import (
	"github.com/sirupsen/logrus"
)

// Logger is the injectable structured-logging surface used throughout the
// package. It mirrors logrus's Fields-based API directly (rather than
// inventing a narrower interface) so the default implementation is a
// zero-overhead wrapper and callers already fluent in logrus gain nothing
// unfamiliar by supplying their own *logrus.Logger.
type Logger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// defaultLogger is the package-wide sink. It is one of the few pieces of
// global mutable state in this package, alongside the timer sequence
// counter; it is injectable via SetLogger so callers can redirect or
// silence it.
var defaultLogger Logger = logrus.StandardLogger()

// SetLogger overrides the package-wide logging sink. Not safe to call
// concurrently with loop activity; intended for process start-up.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}

func logFields(fields logrus.Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}
