package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level and logger name.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])
	test.That(t, actualParts[2], test.ShouldEqual, expectedParts[2])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[4], test.ShouldEqual, expectedParts[4])
	if len(actualParts) == 5 {
		return
	}

	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[5]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)
	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[5]), &actualMap)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func newBufferedLogger(name string, level Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &impl{name, NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(buf)}}
	return logger, buf
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, buf := newBufferedLogger("bridge", DEBUG)

	logger.Info("info log")
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	INFO	bridge	logging/impl_test.go:67	info log`)

	logger.Debugf("stream %s enabled: %v", "ins", true)
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	DEBUG	bridge	logging/impl_test.go:71	stream ins enabled: true`)

	logger.Warnw("mode conflict", "requested", "rover", "selected", "dual_gnss")
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	WARN	bridge	logging/impl_test.go:75	mode conflict	{"requested":"rover","selected":"dual_gnss"}`)
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger("bridge", WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
}

func TestSublogger(t *testing.T) {
	logger, buf := newBufferedLogger("bridge", INFO)
	sub := logger.Sublogger("rtkmode")

	sub.Info("configured")
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Split(line, "\t")[2], test.ShouldEqual, "bridge.rtkmode")
	test.That(t, sub.GetLevel(), test.ShouldEqual, INFO)
}

func TestUnpairedKey(t *testing.T) {
	logger, buf := newBufferedLogger("", DEBUG)
	logger.Infow("msg", "lonely")
	test.That(t, buf.String(), test.ShouldContainSubstring, "unpaired log key")
}

func TestObservedLogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Warnf("unable to configure %s", "rover")
	logger.Debug("quiet")

	test.That(t, observed.FilterMessageSnippet("unable to configure").Len(), test.ShouldEqual, 1)
	test.That(t, observed.Len(), test.ShouldEqual, 2)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFormatLine(t *testing.T) {
	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
		LoggerName: "bridge.bus",
		Message:    "memory bus selected",
	}
	line, err := formatLine(entry, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldEqual, "2024-03-14T15:09:26.000Z\tINFO\tbridge.bus\tmemory bus selected")

	line, err = formatLine(entry, keyValueFields([]interface{}{"bus", "memory", "subscribers", 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldEndWith, "\tmemory bus selected\t{\"bus\":\"memory\",\"subscribers\":0}")
}
