// Package corelog wires up the process-wide structured logger used by
// every component in this module, backed by github.com/joeycumines/logiface
// with the stumpy JSON backend.
package corelog

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout this module.
type Logger = logiface.Logger[*stumpy.Event]

var (
	mu      sync.RWMutex
	current *Logger
)

func defaultLogger() *Logger {
	return logiface.New(stumpy.WithStumpy(), logiface.WithLevel[*stumpy.Event](logiface.LevelInformational))
}

// Set installs the process-wide default logger. Passing nil restores the
// stumpy-backed default.
func Set(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// Get returns the process-wide default logger, lazily constructing the
// stumpy-backed default on first use.
func Get() *Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = defaultLogger()
	}
	return current
}
