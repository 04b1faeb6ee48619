package trace

import "errors"

// MultiTracer fans events out to several tracers, each applying its own
// level filter.
type MultiTracer struct {
	tracers []Tracer
	level   Level
}

// NewMultiTracer returns a tracer emitting to every tracer in tracers.
// level reports the combined verbosity.
func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	return &MultiTracer{tracers: tracers, level: level}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

// Flush flushes every tracer and joins their errors.
func (t *MultiTracer) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every tracer and joins their errors.
func (t *MultiTracer) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Level() Level { return t.level }

func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }
