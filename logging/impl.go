package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callSiteDepth skips callSite, newEntry and the exported Logger method.
const callSiteDepth = 3

var errUnpairedKey = errors.New("unpaired log key")

// impl hands every entry at or above its level to each appender. Subloggers share the appender
// slice and copy the level, so SetLevel on one does not move the other.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// AsZap builds a zap logger at the current level for libraries that take one. Appenders that are
// themselves cores, like the test observer, receive its entries too.
func (imp *impl) AsZap() *zap.SugaredLogger {
	cfg := NewZapLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(imp.level.Get().AsZap())
	sugared := zap.Must(cfg.Build()).Sugar().Named(imp.name)

	var cores []zapcore.Core
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
		}
	}
	if len(cores) == 0 {
		return sugared
	}
	return sugared.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(append([]zapcore.Core{c}, cores...)...)
	}))
}

func (imp *impl) enabled(level Level) bool {
	return level >= imp.level.Get()
}

// newEntry must be called directly from a Logger method for the call site to resolve.
func (imp *impl) newEntry(level Level, msg string) zapcore.Entry {
	now := time.Now()
	if imp.inUTC {
		now = now.UTC()
	}
	return zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: imp.name,
		Message:    msg,
		Caller:     callSite(),
	}
}

func (imp *impl) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, "logging:", err)
		}
	}
}

// keyValueFields pairs up keysAndValues. A trailing key without a value is kept with an error
// value so the mistake shows up in the output.
func keyValueFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.newEntry(DEBUG, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.newEntry(DEBUG, fmt.Sprintf(template, args...)), nil)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.newEntry(DEBUG, msg), keyValueFields(keysAndValues))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.newEntry(INFO, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.newEntry(INFO, fmt.Sprintf(template, args...)), nil)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.newEntry(INFO, msg), keyValueFields(keysAndValues))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.newEntry(WARN, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.newEntry(WARN, fmt.Sprintf(template, args...)), nil)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.newEntry(WARN, msg), keyValueFields(keysAndValues))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.newEntry(ERROR, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.newEntry(ERROR, fmt.Sprintf(template, args...)), nil)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.newEntry(ERROR, msg), keyValueFields(keysAndValues))
	}
}

// Fatal logs at error level regardless of the configured level and exits.
func (imp *impl) Fatal(args ...interface{}) {
	imp.write(imp.newEntry(ERROR, fmt.Sprint(args...)), nil)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.write(imp.newEntry(ERROR, fmt.Sprintf(template, args...)), nil)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.write(imp.newEntry(ERROR, msg), keyValueFields(keysAndValues))
	os.Exit(1)
}

func callSite() zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(callSiteDepth)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.NewEntryCaller(pc, file, line, true)
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
