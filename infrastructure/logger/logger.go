package logger

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

type logEntry struct {
	log   []byte
	level Level
}

// Logger writes leveled, tagged messages for one subsystem to a Backend.
type Logger struct {
	level     uint32 // atomic
	tag       string
	backend   *Backend
	writeChan chan<- logEntry
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

// Backend returns the Backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.backend
}

// Tracef formats and logs a message at LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.writef(LevelTrace, format, args...)
}

// Debugf formats and logs a message at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.writef(LevelDebug, format, args...)
}

// Infof formats and logs a message at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.writef(LevelInfo, format, args...)
}

// Warnf formats and logs a message at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.writef(LevelWarn, format, args...)
}

// Errorf formats and logs a message at LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.writef(LevelError, format, args...)
}

// Criticalf formats and logs a message at LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.writef(LevelCritical, format, args...)
}

func (l *Logger) writef(level Level, format string, args ...interface{}) {
	if level < l.Level() || !l.backend.IsRunning() {
		return
	}
	buf := &bytes.Buffer{}
	l.formatHeader(buf, time.Now(), level)
	fmt.Fprintf(buf, format, args...)
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	l.writeChan <- logEntry{log: buf.Bytes(), level: level}
}

// formatHeader writes "2006-01-02 15:04:05.000 [LVL] TAG: " and, depending
// on the backend flags, the callsite.
func (l *Logger) formatHeader(buf *bytes.Buffer, t time.Time, level Level) {
	buf.WriteString(t.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" [")
	buf.WriteString(level.String())
	buf.WriteString("] ")
	buf.WriteString(l.tag)
	if l.backend.flag&(LogFlagShortFile|LogFlagLongFile) != 0 {
		file, line := callsite(l.backend.flag)
		fmt.Fprintf(buf, " %s:%d", file, line)
	}
	buf.WriteString(": ")
}

// callsite returns the file and line of the code that called one of the
// Logger's exported methods.
func callsite(flag uint32) (string, int) {
	_, file, line, ok := runtime.Caller(4)
	if !ok {
		return "???", 0
	}
	if flag&LogFlagShortFile != 0 {
		file = file[strings.LastIndex(file, "/")+1:]
	}
	return file, line
}

type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdoutWriter) Close() error {
	return nil
}
