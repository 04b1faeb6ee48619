package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory. The CLI dumps it when
// a command fails.
type RingTracer struct {
	mu     sync.RWMutex
	events []Event
	start  int // oldest event
	count  int
	level  Level
}

// NewRingTracer creates a RingTracer holding up to capacity events.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{events: make([]Event, capacity), level: level}
}

// Emit records ev, overwriting the oldest event when full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) && ev.Kind != KindHeartbeat {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	stored := *ev
	stored.Seq = NextSeq()
	n := len(t.events)
	if t.count < n {
		t.events[(t.start+t.count)%n] = stored
		t.count++
		return
	}
	t.events[t.start] = stored
	t.start = (t.start + 1) % n
}

// Len returns the number of stored events.
func (t *RingTracer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Tail returns up to the last n events, oldest first. n <= 0 returns all.
func (t *RingTracer) Tail(n int) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]Event, n)
	for i := range n {
		out[i] = t.events[(t.start+t.count-n+i)%len(t.events)]
	}
	return out
}

// Snapshot returns every stored event, oldest first.
func (t *RingTracer) Snapshot() []Event { return t.Tail(0) }

// Dump writes the last n events (all when n <= 0) in format.
func (t *RingTracer) Dump(w io.Writer, format Format, n int) error {
	for _, ev := range t.Tail(n) {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }

func (t *RingTracer) Close() error { return nil }

func (t *RingTracer) Level() Level { return t.level }

func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

// Rings returns the ring tracers reachable from t.
func Rings(t Tracer) []*RingTracer {
	switch v := t.(type) {
	case *RingTracer:
		return []*RingTracer{v}
	case *MultiTracer:
		var out []*RingTracer
		for _, c := range v.tracers {
			out = append(out, Rings(c)...)
		}
		return out
	}
	return nil
}
