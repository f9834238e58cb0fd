package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("matched %d sources", 42)
	if got != "matched 42 sources" {
		t.Errorf("expected redirected message, got %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	defer SetLogger(nil)

	SetLogger(nil)
	// Must not panic.
	Logf("ignored %s", "message")
	Warnf("ignored too")
}

func TestWarnfPrefix(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Warnf("only %d sources found", 2)
	if got != "WARNING: only 2 sources found" {
		t.Errorf("unexpected warning output: %q", got)
	}
}
