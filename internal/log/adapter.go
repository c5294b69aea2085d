package log

import "github.com/sirupsen/logrus"

// entryLogger gets the leveled methods from the embedded entry and only
// rewraps the ones returning a derived logger.
type entryLogger struct {
	*logrus.Entry
}

func (l entryLogger) WithField(field string, value interface{}) Logger {
	return entryLogger{l.Entry.WithField(field, value)}
}

func (l entryLogger) WithFields(fields map[string]interface{}) Logger {
	return entryLogger{l.Entry.WithFields(fields)}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{l.Entry.WithError(err)}
}

func (l entryLogger) IsTraceEnabled() bool { return l.Logger.IsLevelEnabled(logrus.TraceLevel) }
func (l entryLogger) IsDebugEnabled() bool { return l.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (l entryLogger) IsInfoEnabled() bool  { return l.Logger.IsLevelEnabled(logrus.InfoLevel) }
