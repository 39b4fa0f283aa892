package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level orders log events by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
)

var levelNames = [...]string{"debug", "info", "notice", "warning", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level; unknown strings fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	}
	return LevelInfo
}

// Sink receives leveled events. Components must behave identically with Nop.
type Sink interface {
	Log(level Level, msg string, fields map[string]any)
}

type entry struct {
	Level   string         `json:"level"`
	Time    string         `json:"time"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
	now func() time.Time
}

func New(w io.Writer, min Level) *JSONLogger {
	if w == nil {
		w = os.Stdout
	}
	return &JSONLogger{w: w, min: min, now: time.Now}
}

func (l *JSONLogger) Log(level Level, msg string, fields map[string]any) {
	if level < l.min {
		return
	}
	e := entry{Level: level.String(), Time: l.now().UTC().Format(time.RFC3339Nano), Message: msg, Fields: fields}
	b, err := json.Marshal(e)
	if err != nil {
		b, _ = json.Marshal(entry{Level: e.Level, Time: e.Time, Message: msg, Fields: map[string]any{"marshal_error": err.Error()}})
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, string(b))
}

type nop struct{}

func (nop) Log(Level, string, map[string]any) {}

// Nop discards everything.
func Nop() Sink { return nop{} }

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return nop{}
	}
	return s
}

var std Sink = New(os.Stdout, LevelInfo)

// SetDefault replaces the sink used by the package-level helpers.
func SetDefault(s Sink) { std = OrNop(s) }

func Default() Sink { return std }

func Log(level Level, msg string, fields map[string]any) { std.Log(level, msg, fields) }

func Info(msg string, fields map[string]any)  { Log(LevelInfo, msg, fields) }
func Error(msg string, fields map[string]any) { Log(LevelError, msg, fields) }
