package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"tunesmith/internal/logging"
)

// Entry is one JSON record from the log file.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	ItemKey   string
	Stage     string
	EventType string
	Fields    map[string]any
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// ParseEntry decodes a log line. Lines that are not JSON records report
// false.
func ParseEntry(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	e := Entry{Fields: make(map[string]any)}
	for key, value := range raw {
		s, _ := value.(string)
		switch key {
		case "ts":
			e.Time, _ = time.Parse(time.RFC3339Nano, s)
		case "level":
			e.Level = strings.ToLower(s)
		case "msg":
			e.Message = s
		case logging.FieldComponent:
			e.Component = s
		case logging.FieldItemKey:
			e.ItemKey = s
		case logging.FieldStage:
			e.Stage = s
		case logging.FieldEventType:
			e.EventType = s
		default:
			e.Fields[key] = value
		}
	}
	return e, true
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	ItemKey   string
	Component string
	// MinLevel drops entries below it.
	MinLevel string
	Search   string
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e Entry) bool {
	if f.ItemKey != "" && e.ItemKey != f.ItemKey {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" {
		floor, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[e.Level] < floor {
			return false
		}
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Format renders e on one line: time, level, component, song, message and
// the remaining fields sorted by key.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(e.Level))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	if e.ItemKey != "" {
		fmt.Fprintf(&b, " %s", e.ItemKey)
		if e.Stage != "" {
			fmt.Fprintf(&b, "/%s", e.Stage)
		}
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		if key == logging.FieldPipeline || key == logging.FieldCorrelationID || key == "source" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Fields[key])
	}
	return b.String()
}
