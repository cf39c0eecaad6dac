package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/John-Robertt/subhub/internal/config"
)

func TestZeroLogger_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("hidden", "k", "v")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}

	l.Warn("custom set missing", "id", "g1", "count", 3)
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"message":"custom set missing"`, `"id":"g1"`, `"count":3`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output=%q, want it to contain %q", out, want)
		}
	}
}

func TestZeroLogger_Err(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug").Err(errors.New("boom"), "refresh failed", "source", "a")
	out := buf.String()
	if !strings.Contains(out, `"error":"boom"`) || !strings.Contains(out, `"source":"a"`) {
		t.Fatalf("output=%q", out)
	}
}

func TestNew_NoWriters(t *testing.T) {
	l := New(config.Log{Level: "debug"})
	// Nop must not panic.
	l.Info("x")
	l.Err(errors.New("y"), "z")
}
