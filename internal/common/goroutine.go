package common

import (
	"fmt"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs a function in a goroutine with panic recovery.
// Panics are logged and written to a crash file but don't crash the service.
//
// Example:
//
//	common.SafeGo(logger, "executor-worker-1", func() {
//	    executor.work(ctx)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs and records a panic. It must be called directly via defer.
func Recover(logger arbor.ILogger, name string) {
	r := recover()
	if r == nil {
		return
	}
	stackTrace := GetStackTrace()
	crashPath := WriteCrashFile(r, stackTrace)
	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("crash_file", crashPath).
			Msg("Recovered from panic in goroutine - continuing service operation")
	}
}
