package observ

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one timed step of a bound function: a bind, init, run or close.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer records phases in the order they begin. Repeated phases, such as
// the runs of one function, are kept individually and folded together by
// Report. A Timer is not safe for concurrent use.
type Timer struct {
	phases []Phase
}

func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 8)} }

// Begin opens a phase and returns the handle End expects.
func (t *Timer) Begin(name string) int {
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now()})
	return len(t.phases) - 1
}

// End closes the phase opened under idx. Unknown handles are ignored.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
}

// Phases returns a copy of the recorded phases.
func (t *Timer) Phases() []Phase { return append([]Phase(nil), t.phases...) }

// PhaseReport aggregates every phase recorded under one name.
type PhaseReport struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"` // note of the latest occurrence
}

// Report is the serializable timer summary.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report folds phases by name, in order of first occurrence.
func (t *Timer) Report() Report {
	if len(t.phases) == 0 {
		return Report{}
	}
	var (
		r     Report
		total time.Duration
		pos   = make(map[string]int, len(t.phases))
	)
	for _, p := range t.phases {
		total += p.Dur
		i, ok := pos[p.Name]
		if !ok {
			i = len(r.Phases)
			pos[p.Name] = i
			r.Phases = append(r.Phases, PhaseReport{Name: p.Name})
		}
		pr := &r.Phases[i]
		pr.Count++
		pr.DurationMS += millis(p.Dur)
		if p.Note != "" {
			pr.Note = p.Note
		}
	}
	r.TotalMS = millis(total)
	return r
}

// Summary renders Report as an aligned text block.
func (t *Timer) Summary() string {
	r := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range r.Phases {
		name := p.Name
		if p.Count > 1 {
			name = fmt.Sprintf("%s x%d", p.Name, p.Count)
		}
		fmt.Fprintf(&sb, "  %-24s %8.3f ms", name, p.DurationMS)
		if p.Note != "" {
			sb.WriteString("  " + p.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-24s %8.3f ms\n", "total", r.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
