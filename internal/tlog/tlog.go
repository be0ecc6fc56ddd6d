// Package tlog provides the leveled loggers used throughout cryfs.
//
// Debug is silent unless enabled explicitly; Info, Warn and Fatal always
// write. Fatal does not call os.Exit itself - callers choose the exit code
// from package exitcodes and exit after logging.
package tlog

import (
	"fmt"
	"log"
	"os"
)

// Logger is a minimal leveled logger backed by the standard log package.
type Logger struct {
	*log.Logger
	Enabled bool
}

// Printf logs a message if the logger is enabled.
func (l *Logger) Printf(format string, v ...interface{}) {
	if l == nil || !l.Enabled {
		return
	}
	l.Logger.Printf(format, v...)
}

// Println logs a message if the logger is enabled.
func (l *Logger) Println(v ...interface{}) {
	if l == nil || !l.Enabled {
		return
	}
	l.Logger.Println(v...)
}

var (
	// Debug logging is off by default; enable with SetDebug(true).
	Debug = &Logger{Logger: log.New(os.Stderr, "cryfs: [d] ", 0), Enabled: false}
	// Info logging is on by default.
	Info = &Logger{Logger: log.New(os.Stdout, "cryfs: ", 0), Enabled: true}
	// Warn logging is on by default.
	Warn = &Logger{Logger: log.New(os.Stderr, "cryfs: warning: ", 0), Enabled: true}
	// Fatal logging is on by default. Callers must still exit explicitly.
	Fatal = &Logger{Logger: log.New(os.Stderr, "cryfs: fatal: ", 0), Enabled: true}
)

// SetDebug toggles debug-level logging at runtime.
func SetDebug(on bool) {
	Debug.Enabled = on
}

// Errorf logs at Warn level and returns the formatted error, matching the
// pattern used throughout the store/config layers: log at the boundary,
// then propagate.
func Errorf(format string, v ...interface{}) error {
	err := fmt.Errorf(format, v...)
	Warn.Println(err.Error())
	return err
}
