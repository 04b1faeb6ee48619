package trace

import (
	"context"
	"time"
)

// binding is what a context carries: the tracer and the innermost open
// span, which becomes the parent of spans started from that context.
type binding struct {
	tracer Tracer
	span   SpanContext
}

type ctxKey struct{}

// SpanContext identifies the innermost open span.
type SpanContext struct {
	SpanID uint64
	GID    uint64
}

func bindingOf(ctx context.Context) binding {
	if ctx != nil {
		if b, ok := ctx.Value(ctxKey{}).(binding); ok {
			return b
		}
	}
	return binding{tracer: Nop}
}

// FromContext returns the tracer attached to ctx, or Nop.
func FromContext(ctx context.Context) Tracer { return bindingOf(ctx).tracer }

// WithTracer attaches t to ctx. The current span, if any, is kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	b := bindingOf(ctx)
	b.tracer = t
	return context.WithValue(ctx, ctxKey{}, b)
}

// CurrentSpan returns the innermost open span of ctx, zero if none.
func CurrentSpan(ctx context.Context) SpanContext { return bindingOf(ctx).span }

// WithSpanContext makes sc the parent of spans started from the returned
// context.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		return nil
	}
	b := bindingOf(ctx)
	b.span = sc
	return context.WithValue(ctx, ctxKey{}, b)
}

// PointFrom emits an instant event on the tracer attached to ctx,
// parented to the current span of ctx.
func PointFrom(ctx context.Context, scope Scope, name, detail string) {
	b := bindingOf(ctx)
	if !b.tracer.Enabled() || !b.tracer.Level().ShouldEmit(scope) {
		return
	}
	b.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: b.span.SpanID,
		GID:      getGoroutineID(),
		Name:     name,
		Detail:   detail,
	})
}
