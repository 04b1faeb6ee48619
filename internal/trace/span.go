package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next process-wide event sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID returns a fresh span id. Ids start at 1.
func NextSpanID() uint64 { return spanCounter.Add(1) }

// Span is an open begin/end pair. The zero-id span returned for filtered
// scopes is inert: End, WithExtra and Point do nothing.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	gid     uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

var inert = &Span{tracer: Nop}

func (s *Span) live() bool {
	return s != nil && s.id != 0 && s.tracer != nil && s.tracer.Enabled()
}

// Begin opens a span under parent (0 for a root span) and emits its begin
// event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return inert
	}
	s := &Span{
		tracer:  t,
		id:      NextSpanID(),
		parent:  parent,
		gid:     getGoroutineID(),
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	return &Event{
		Time:     at,
		Seq:      NextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		GID:      s.gid,
		Name:     s.name,
		Detail:   detail,
	}
}

// End emits the end event carrying the attached extras and returns the
// span duration.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}
	now := time.Now()
	ev := s.event(KindSpanEnd, now, detail)
	ev.Elapsed = now.Sub(s.started)
	ev.Extra = s.extra
	s.tracer.Emit(ev)
	return ev.Elapsed
}

// WithExtra attaches a key/value pair reported with the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// Point emits an instant event parented to s.
func (s *Span) Point(name, detail string) {
	if !s.live() || !s.tracer.Level().ShouldEmit(s.scope) {
		return
	}
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    s.scope,
		ParentID: s.id,
		GID:      getGoroutineID(),
		Name:     name,
		Detail:   detail,
	})
}

// ID returns the span id, 0 for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Start opens a span under the tracer and parent span carried by ctx. The
// returned context carries the new span unless it was filtered out.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	s := Begin(FromContext(ctx), scope, name, CurrentSpan(ctx).SpanID)
	if s.id == 0 {
		return ctx, s
	}
	return WithSpanContext(ctx, SpanContext{SpanID: s.id, GID: s.gid}), s
}

// Point emits a root-level instant event.
func Point(t Tracer, scope Scope, name, detail string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:   time.Now(),
		Seq:    NextSeq(),
		Kind:   KindPoint,
		Scope:  scope,
		GID:    getGoroutineID(),
		Name:   name,
		Detail: detail,
	})
}
