// Package log is a thin structured-logging facade over logrus. Call sites
// follow the pattern log.Error(ctx, message, "key", value, ..., err): the
// leading context is optional, key/value pairs alternate, and a trailing
// error is picked up automatically.
package log

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts the global log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// SetOutput redirects log output (used by tests).
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	logger.SetOutput(w)
}

func Debug(args ...interface{}) { logEntry(logrus.DebugLevel, args...) }
func Info(args ...interface{})  { logEntry(logrus.InfoLevel, args...) }
func Warn(args ...interface{})  { logEntry(logrus.WarnLevel, args...) }
func Error(args ...interface{}) { logEntry(logrus.ErrorLevel, args...) }

func logEntry(level logrus.Level, args ...interface{}) {
	if len(args) == 0 {
		return
	}
	if _, ok := args[0].(context.Context); ok {
		args = args[1:]
		if len(args) == 0 {
			return
		}
	}
	msg, _ := args[0].(string)
	fields := logrus.Fields{}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		if err, ok := rest[i].(error); ok {
			fields["error"] = err.Error()
			continue
		}
		key, ok := rest[i].(string)
		if !ok || i+1 >= len(rest) {
			continue
		}
		fields[key] = rest[i+1]
		i++
	}
	logger.WithFields(fields).Log(level, msg)
}
