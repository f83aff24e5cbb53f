package vlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
)

const levelDebug = 0
const levelInfo = 1
const levelWarn = 2
const levelError = 3
const separator = " - "

// recentSize bounds the ring of formatted lines kept for status queries
const recentSize = 128

type Field struct {
	Key   string
	Value interface{}
}

// F builds a structured field for the *With logging methods
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type Logger struct {
	logLevel int
	caller   string
	logger   *log.Logger
	logFile  *os.File
	mu       sync.Mutex
	recent   []string
}

func NewLogger(prefix string) *Logger {
	l := &Logger{
		logLevel: levelInfo,
		logger:   log.New(os.Stdout, prefix, log.LstdFlags|log.Lmsgprefix),
	}
	return l
}

// NewDummyLog returns a discarding std logger for libraries that insist
// on one
func NewDummyLog() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (l *Logger) WithDebug() {
	l.logLevel = levelDebug
}

func (l *Logger) WithInfo() {
	l.logLevel = levelInfo
}

func (l *Logger) WithWarn() {
	l.logLevel = levelWarn
}

func (l *Logger) WithError() {
	l.logLevel = levelError
}

func (l *Logger) SetLevel(verbosity string) error {
	switch strings.ToUpper(verbosity) {
	case "DEBUG":
		l.WithDebug()
	case "INFO":
		l.WithInfo()
	case "WARN":
		l.WithWarn()
	case "ERROR":
		l.WithError()
	default:
		return fmt.Errorf("incorrect log level, expected one of [DEBUG|INFO|WARN|ERROR]")
	}
	return nil
}

// WithLogFile mirrors every line into the given file on top of stdout
func (l *Logger) WithLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file %s - %v", path, err)
	}
	l.mu.Lock()
	l.logFile = f
	l.logger.SetOutput(io.MultiWriter(os.Stdout, f))
	l.mu.Unlock()
	return nil
}

func (l *Logger) CloseLogFile() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
		l.logger.SetOutput(os.Stdout)
	}
}

// WithCaller returns a shallow copy that tags lines with the calling
// file and line number
func (l *Logger) WithCaller() *Logger {
	lc := &Logger{
		logLevel: l.logLevel,
		logger:   l.logger,
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		parts := strings.Split(file, "/")
		lc.caller = fmt.Sprintf("%s:%d ", parts[len(parts)-1], line)
	}
	return lc
}

// Recent returns a copy of the last formatted lines, newest last
func (l *Logger) Recent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.recent))
	copy(out, l.recent)
	return out
}

func (l *Logger) keep(line string) {
	l.mu.Lock()
	l.recent = append(l.recent, line)
	if len(l.recent) > recentSize {
		l.recent = l.recent[len(l.recent)-recentSize:]
	}
	l.mu.Unlock()
}

func (l *Logger) output(tag, t string, args ...interface{}) {
	line := tag + separator + l.caller + fmt.Sprintf(t, args...)
	l.keep(line)
	l.logger.Print(line)
}

func (l *Logger) Printf(t string, args ...interface{}) {
	l.Infof(t, args...)
}

func (l *Logger) Debugf(t string, args ...interface{}) {
	if l.logLevel == levelDebug {
		l.output(tagDebug(), t, args...)
	}
}

func (l *Logger) Infof(t string, args ...interface{}) {
	if l.logLevel <= levelInfo {
		l.output(tagInfo(), t, args...)
	}
}

func (l *Logger) Warnf(t string, args ...interface{}) {
	if l.logLevel <= levelWarn {
		l.output(tagWarn(), t, args...)
	}
}

func (l *Logger) Errorf(t string, args ...interface{}) {
	if l.logLevel <= levelError {
		l.output(tagError(), t, args...)
	}
}

func (l *Logger) Fatalf(t string, args ...interface{}) {
	line := tagFatal() + separator + l.caller + fmt.Sprintf(t, args...)
	l.keep(line)
	l.logger.Fatal(line)
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(fmt.Sprintf(" %s=%v", f.Key, f.Value))
	}
	return sb.String()
}

func (l *Logger) DebugWith(msg string, fields ...Field) {
	if l.logLevel == levelDebug {
		l.output(tagDebug(), "%s%s", msg, formatFields(fields))
	}
}

func (l *Logger) InfoWith(msg string, fields ...Field) {
	if l.logLevel <= levelInfo {
		l.output(tagInfo(), "%s%s", msg, formatFields(fields))
	}
}

func (l *Logger) WarnWith(msg string, fields ...Field) {
	if l.logLevel <= levelWarn {
		l.output(tagWarn(), "%s%s", msg, formatFields(fields))
	}
}

func (l *Logger) ErrorWith(msg string, fields ...Field) {
	if l.logLevel <= levelError {
		l.output(tagError(), "%s%s", msg, formatFields(fields))
	}
}
