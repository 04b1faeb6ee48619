package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Tracer receives trace events. Implementations must be safe for
// concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	// Enabled reports Level() > LevelOff.
	Enabled() bool
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards every event.
var Nop Tracer = nopTracer{}

// DefaultRingSize is the ring capacity used when Config.RingSize is unset.
const DefaultRingSize = 4096

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as emitted
	ModeRing                          // kept in memory for post-mortem dumps
	ModeBoth
)

var modeNames = [...]string{
	ModeStream: "stream",
	ModeRing:   "ring",
	ModeBoth:   "both",
}

func (m StorageMode) String() string {
	if m > 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode parses a --trace-mode value.
func ParseMode(s string) (StorageMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if i > 0 && name == s {
			return StorageMode(i), nil
		}
	}
	return ModeRing, fmt.Errorf("invalid trace mode %q (want stream, ring or both)", s)
}

// Config describes the tracer a command wants.
type Config struct {
	Level      Level
	Mode       StorageMode
	Format     Format
	Output     io.Writer // takes precedence over OutputPath
	OutputPath string    // "-" or "" for stderr
	RingSize   int
	Heartbeat  time.Duration
}

// New builds the tracer described by cfg. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Mode == ModeRing {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	if cfg.Mode != ModeStream && cfg.Mode != ModeBoth {
		return nil, fmt.Errorf("unknown trace mode %v", cfg.Mode)
	}

	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	stream := NewStreamTracer(w, cfg.Level, resolveFormat(cfg))
	if cfg.Mode == ModeStream {
		return stream, nil
	}
	return NewMultiTracer(cfg.Level, stream, NewRingTracer(cfg.RingSize, cfg.Level)), nil
}

func resolveFormat(cfg Config) Format {
	if cfg.Format != FormatAuto {
		return cfg.Format
	}
	if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".jsonl") {
		return FormatNDJSON
	}
	return FormatText
}

// stderrWriter hides os.Stderr's Close from the stream tracer.
type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) { return os.Stderr.Write(p) }

func openOutput(cfg Config) (io.Writer, error) {
	switch {
	case cfg.Output != nil:
		return cfg.Output, nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return stderrWriter{}, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}
