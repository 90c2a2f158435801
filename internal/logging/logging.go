// Package logging provides a minimal per-component logger built on the
// standard library, matching the teacher's use of plain log.Printf for
// daemon output.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger prefixes every line with a component name, the way
// therealutkarshpriyadarshi/containr's logger.New("restart") scopes output
// per subsystem.
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a logger scoped to component.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) log(level, format string, args ...any) {
	l.std.Printf("%s [%s] %s", level, l.component, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any)  { l.log("INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log("WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log("ERROR", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log("DEBUG", format, args...) }
