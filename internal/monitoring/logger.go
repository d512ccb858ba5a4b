// Package monitoring holds the planner's diagnostic logger.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var logger atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic message through the current logger, log.Printf
// unless replaced by SetLogger. Safe for concurrent use.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op
// logger. It may be called while other goroutines are logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	lf := logFunc(f)
	logger.Store(&lf)
}

// Scoped prefixes every message with the subject key and stage it concerns,
// e.g. "[taco-bell/route] 3 partitions".
type Scoped struct {
	prefix string
}

// Stage returns a logger scoped to one subject's stage.
func Stage(key, stage string) Scoped {
	return Scoped{prefix: "[" + key + "/" + stage + "] "}
}

// Subject returns a logger scoped to a subject.
func Subject(key string) Scoped {
	return Scoped{prefix: "[" + key + "] "}
}

// Printf logs through Logf with the scope prefix.
func (s Scoped) Printf(format string, v ...interface{}) {
	Logf(s.prefix+format, v...)
}
