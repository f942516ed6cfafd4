// Package datalog records the raw device byte stream to disk.
package datalog

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SessionTimeFormat names session directories by their start time.
const SessionTimeFormat = "20060102_150405"

// Options configure a data log.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	Now        func() time.Time
}

// Log is a rotating raw data log inside its own session directory.
type Log struct {
	mu      sync.Mutex
	session string
	rotator *lumberjack.Logger
	written int64
}

// Start creates a new session directory under opts.Dir and opens the log there.
func Start(opts Options) (*Log, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	name := now().Format(SessionTimeFormat) + "_" + uuid.NewString()[:8]
	session := filepath.Join(opts.Dir, name)
	if err := os.MkdirAll(session, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating data log session directory")
	}
	return &Log{
		session: session,
		rotator: &lumberjack.Logger{
			Filename:   filepath.Join(session, "device.dat"),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
	}, nil
}

// Session is the directory the log writes to.
func (l *Log) Session() string {
	return l.session
}

// Write appends p to the log.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.rotator.Write(p)
	l.written += int64(n)
	return n, err
}

// Written is the number of bytes logged this session.
func (l *Log) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close flushes and closes the current file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotator.Close()
}
