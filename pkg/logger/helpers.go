package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// OrDefault returns l, or the global logger when l is nil
func OrDefault(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// LogAttemptFailed logs a failed fetch attempt that will be retried
func LogAttemptFailed(l Logger, username string, attempt, maxAttempts int, kind string, delay time.Duration) {
	OrDefault(l).WarnWithFields("attempt failed, retrying", map[string]interface{}{
		"username":     username,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"error_kind":   kind,
		"delay_ms":     delay.Milliseconds(),
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, fields map[string]interface{}) {
	log := OrDefault(l).WithField("component", component)
	if len(fields) > 0 {
		log = log.WithFields(fields)
	}
	log.Info("component started")
}

// NewNopLogger creates a no-operation logger
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
