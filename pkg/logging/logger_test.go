package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelWarn, &buf)

	l.Info("should not appear")
	l.Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestWithFieldsAccumulates(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelDebug, &buf)

	l.WithField("cell", 42).WithFields(map[string]interface{}{"gen": 3}).Error("boom")

	out := buf.String()
	assert.True(t, strings.Contains(out, "cell=42"))
	assert.True(t, strings.Contains(out, "gen=3"))
}

func TestNullLoggerDiscards(t *testing.T) {
	var l Logger = NullLogger{}
	l.Info("noop")
	l = l.WithField("k", "v")
	l.Error("still noop")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("unknown"))
}
