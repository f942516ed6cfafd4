package datalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestStartWritesSession(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)
	log, err := Start(Options{Dir: dir, MaxSizeMB: 1, Now: func() time.Time { return start }})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, filepath.Dir(log.Session()), test.ShouldEqual, dir)
	test.That(t, strings.HasPrefix(filepath.Base(log.Session()), "20240314_150926_"), test.ShouldBeTrue)

	n, err := log.Write([]byte{0xFF, 0x04, 0xFE})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, log.Written(), test.ShouldEqual, int64(3))
	test.That(t, log.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(filepath.Join(log.Session(), "device.dat"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data, test.ShouldResemble, []byte{0xFF, 0x04, 0xFE})
}

func TestSessionsAreDistinct(t *testing.T) {
	dir := t.TempDir()
	a, err := Start(Options{Dir: dir})
	test.That(t, err, test.ShouldBeNil)
	defer a.Close()
	b, err := Start(Options{Dir: dir})
	test.That(t, err, test.ShouldBeNil)
	defer b.Close()
	test.That(t, a.Session(), test.ShouldNotEqual, b.Session())
}
