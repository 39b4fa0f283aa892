package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelNotice)
	l.Log(LevelDebug, "hidden", nil)
	l.Log(LevelInfo, "hidden too", nil)
	l.Log(LevelWarning, "shown", map[string]any{"id": 7})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var e entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "warning", e.Level)
	assert.Equal(t, "shown", e.Message)
	assert.EqualValues(t, 7, e.Fields["id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelNotice, ParseLevel("notice"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestOrNop(t *testing.T) {
	s := OrNop(nil)
	assert.NotPanics(t, func() { s.Log(LevelError, "x", nil) })
}
