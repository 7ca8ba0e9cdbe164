// Package cancel holds the process-wide cancellation flag as a small,
// explicit, constructed subsystem (not a package-level atomic read by
// free functions) that worker goroutines poll at I/O boundaries and
// loop tops.
package cancel

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"time"
)

// Flag is a cooperative cancellation signal shared by every component
// that performs blocking I/O (Fetcher, DownloadExtractPipeline). It is
// constructed once per run and threaded through constructors.
type Flag struct {
	set atomic.Bool
}

// New creates an unset Flag.
func New() *Flag {
	return &Flag{}
}

// Cancelled reports whether interruption has been requested.
func (f *Flag) Cancelled() bool {
	return f.set.Load()
}

// Cancel requests interruption; idempotent.
func (f *Flag) Cancel() {
	f.set.Store(true)
}

// Context returns a context.Context that is cancelled when f is set
// (f is checked every 50ms) or when parent is done. Callers are not
// required to use it: they can instead check f.Cancelled() at their own
// suspension points, but a context is convenient for plumbing into
// net/http requests.
func (f *Flag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if f.Cancelled() {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

// WatchSignals installs a signal handler that sets f on SIGINT/SIGTERM and
// returns a function to stop watching. Grounded on the teacher's
// context-based shutdown in cmd/depot/main.go, generalized into its own
// small subsystem.
func WatchSignals(f *Flag, signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			f.Cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
