// Package tracklog provides the module's single package-level diagnostic
// logger, swappable the same way internal/monitoring lets callers redirect
// or mute Logf.
package tracklog

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger; tests or production callers can redirect or
// mute it without threading a logger through every constructor.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
