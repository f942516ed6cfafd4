package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// NewTestAppender routes entries to tb.Log so they are printed with the test that wrote them and
// only when it fails or runs verbose.
func NewTestAppender(tb testing.TB) Appender {
	return testLogAppender{tb: tb}
}

type testLogAppender struct {
	tb testing.TB
}

func (a testLogAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	line, err := formatLine(entry, fields)
	a.tb.Log(line)
	return err
}

func (a testLogAppender) Sync() error {
	return nil
}
