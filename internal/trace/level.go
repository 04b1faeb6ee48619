package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff Level = iota
	// LevelError keeps only what the ring dumps after a failed command.
	LevelError
	// LevelPhase emits CLI commands and bind/init/run/close phases.
	LevelPhase
	// LevelDetail adds per-index and per-temporary work.
	LevelDetail
	// LevelDebug emits everything, per-element events included.
	LevelDebug
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

// String returns the flag spelling of l.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag or config value to a Level. Case and
// surrounding space are ignored.
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == want {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether events of scope pass at this level. Levels
// from phase up are numbered like the scopes they admit last.
func (l Level) ShouldEmit(scope Scope) bool {
	if l <= LevelError {
		return false
	}
	return uint8(scope) <= uint8(l)
}
