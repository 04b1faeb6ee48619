package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Lower values are coarser and are
// emitted at lower levels.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one CLI command
	ScopePass                    // bind, init, run or close of a function
	ScopeModule                  // one path index, temporary or harness
	ScopeNode                    // per-element work
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeModule: "module",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if s > 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Events are immutable once emitted; tracers
// that keep them store copies.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for root spans and free points
	GID      uint64
	Name     string // "init", "pidx", "temp:A"
	Detail   string
	// Elapsed is the span duration, set on KindSpanEnd only.
	Elapsed time.Duration
	Extra   map[string]string
}
