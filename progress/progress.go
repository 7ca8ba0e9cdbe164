// Package progress defines the single ProgressSink capability that every
// long-running operation (fetch, extract, link) reports through:
// concrete renderers (a TTY bar, a JSON event stream, a no-op) sit
// behind this one interface instead of a polymorphic bar hierarchy.
package progress

// Sink receives progress events for one unit of work (one download, one
// extraction, ...). Implementations must be safe to call from any
// goroutine.
type Sink interface {
	Start(label string, total int64)
	Update(current, total int64)
	Finish()
	Fail(err error)
}

// Noop discards all events; the default when no UI is attached.
type Noop struct{}

func (Noop) Start(string, int64)    {}
func (Noop) Update(int64, int64)    {}
func (Noop) Finish()                {}
func (Noop) Fail(error)             {}

// Group fans one logical operation's events out to multiple sinks, e.g.
// a TTY bar plus a metrics recorder.
type Group []Sink

func (g Group) Start(label string, total int64) {
	for _, s := range g {
		s.Start(label, total)
	}
}

func (g Group) Update(current, total int64) {
	for _, s := range g {
		s.Update(current, total)
	}
}

func (g Group) Finish() {
	for _, s := range g {
		s.Finish()
	}
}

func (g Group) Fail(err error) {
	for _, s := range g {
		s.Fail(err)
	}
}
