package trace

import (
	"errors"
	"io"
	"sync"
)

// StreamTracer formats each event as it is emitted. The first write error
// is kept for Flush; emitting never fails.
type StreamTracer struct {
	level  Level
	format Format

	mu  sync.Mutex
	w   io.Writer
	err error
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	if format == FormatAuto {
		format = FormatText
	}
	return &StreamTracer{w: w, level: level, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	line := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	_, t.err = t.w.Write(line)
}

// Flush reports the first write error, then flushes a buffering writer.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes the writer when it is an io.Closer.
func (t *StreamTracer) Close() error {
	err := t.Flush()
	if c, ok := t.w.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
