package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat periodically emits heartbeat events so a stuck index build or a
// long-running program can be told apart from a dead process.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	status   func() string
	stop     chan struct{}
	once     sync.Once
	done     sync.WaitGroup
}

// StartHeartbeat emits a heartbeat on tracer every interval until Stop.
// status, when non-nil, supplies a status string appended to each beat's
// detail. It returns nil when tracing is off or interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration, status func() string) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		status:   status,
		stop:     make(chan struct{}),
	}
	h.done.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.done.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for beat := 1; ; beat++ {
		select {
		case <-ticker.C:
			h.tracer.Emit(h.event(beat))
		case <-h.stop:
			return
		}
	}
}

func (h *Heartbeat) event(beat int) *Event {
	detail := "#" + strconv.Itoa(beat)
	if h.status != nil {
		detail += " " + h.status()
	}
	return &Event{
		Time:   time.Now(),
		Seq:    NextSeq(),
		Kind:   KindHeartbeat,
		Scope:  ScopeDriver,
		GID:    getGoroutineID(),
		Name:   "heartbeat",
		Detail: detail,
	}
}

// Stop ends the heartbeat and waits for its goroutine. Safe to call more
// than once and on nil.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.done.Wait()
}
