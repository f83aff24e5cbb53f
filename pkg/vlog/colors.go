package vlog

import (
	"os"
	"runtime"
)

var colorOn bool

const (
	reset  = "\033[0m"
	red    = "\033[31m"
	yellow = "\033[33m"
	purple = "\033[35m"
	cyan   = "\033[36m"
)

// WithColors enables colored level tags when the platform and the
// environment allow it
func (l *Logger) WithColors() {
	if runtime.GOOS == "windows" {
		return
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return
	}
	colorOn = true
}

func tag(color, name string) string {
	if colorOn {
		return "[" + color + name + reset + "]"
	}
	return "[" + name + "]"
}

func tagDebug() string { return tag(purple, "DEBUG") }
func tagInfo() string  { return tag(cyan, "INFO") }
func tagWarn() string  { return tag(yellow, "WARN") }
func tagError() string { return tag(red, "ERROR") }
func tagFatal() string { return tag(red, "FATAL") }
