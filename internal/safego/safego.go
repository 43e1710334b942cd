// Package safego launches background goroutines that survive panics. The
// server runs a handful of fire-and-forget loops (rate limiter cleanup, the
// metrics listener); an unrecovered panic in one of them would kill the
// goroutine silently while the process keeps serving.
package safego

import "log/slog"

// Go runs fn in a new goroutine, recovering and logging any panic under the
// given name so the failed loop is identifiable in the logs.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked", "name", name, "panic", r)
			}
		}()
		fn()
	}()
}
