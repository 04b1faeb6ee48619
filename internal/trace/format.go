package trace

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Format selects how stream tracers render events.
type Format uint8

const (
	FormatAuto   Format = iota // text, or NDJSON for .ndjson/.jsonl outputs
	FormatText
	FormatNDJSON
)

// ParseFormat parses a --trace-format value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format %q (want auto, text or ndjson)", s)
}

// FormatEvent renders ev as one line in format.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return formatNDJSON(ev)
	}
	return formatText(ev)
}

type jsonEvent struct {
	Time      string            `json:"time"`
	Seq       uint64            `json:"seq"`
	Kind      string            `json:"kind"`
	Scope     string            `json:"scope"`
	SpanID    uint64            `json:"span_id,omitempty"`
	ParentID  uint64            `json:"parent_id,omitempty"`
	GID       uint64            `json:"gid,omitempty"`
	Name      string            `json:"name"`
	Detail    string            `json:"detail,omitempty"`
	ElapsedUS int64             `json:"elapsed_us,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

func formatNDJSON(ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:      ev.Time.Format(time.RFC3339Nano),
		Seq:       ev.Seq,
		Kind:      ev.Kind.String(),
		Scope:     ev.Scope.String(),
		SpanID:    ev.SpanID,
		ParentID:  ev.ParentID,
		GID:       ev.GID,
		Name:      ev.Name,
		Detail:    ev.Detail,
		ElapsedUS: ev.Elapsed.Microseconds(),
		Extra:     ev.Extra,
	})
	if err != nil {
		return fmt.Appendf(nil, "{\"error\":%q}\n", err.Error())
	}
	return append(data, '\n')
}

var kindGlyphs = [...]string{
	KindSpanBegin: "→",
	KindSpanEnd:   "←",
	KindPoint:     "•",
	KindHeartbeat: "♡",
}

// formatText renders "[15:04:05.000] ← name 1.2ms (detail) {k=v}". Child
// events are indented one step.
func formatText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(ev.Time.Format(time.TimeOnly + ".000"))
	sb.WriteString("] ")
	if ev.ParentID != 0 {
		sb.WriteString("  ")
	}
	if int(ev.Kind) < len(kindGlyphs) && kindGlyphs[ev.Kind] != "" {
		sb.WriteString(kindGlyphs[ev.Kind])
		sb.WriteByte(' ')
	}
	sb.WriteString(ev.Name)
	if ev.Kind == KindSpanEnd {
		sb.WriteByte(' ')
		sb.WriteString(ev.Elapsed.Round(time.Microsecond).String())
	}
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	if len(ev.Extra) > 0 {
		sb.WriteString(" {")
		for i, k := range slices.Sorted(maps.Keys(ev.Extra)) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + "=" + ev.Extra[k])
		}
		sb.WriteByte('}')
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
