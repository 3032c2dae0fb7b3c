package trace

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newCapturingLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(level, log.New(&buf, "", 0)), &buf
}

func TestSilentLevelSuppressesEverything(t *testing.T) {
	l, buf := newCapturingLogger(LevelSilent)
	l.Eventf("hello %d", 1)
	l.Framef("frame detail")
	l.FrameHex("tx", []byte{1, 2, 3})
	if buf.Len() != 0 {
		t.Fatalf("expected no output at LevelSilent, got %q", buf.String())
	}
}

func TestEventLevelLogsEventsNotFrames(t *testing.T) {
	l, buf := newCapturingLogger(LevelEvent)
	l.Eventf("device connected")
	l.Framef("rx frame")
	out := buf.String()
	if !strings.Contains(out, "device connected") {
		t.Fatalf("expected event line logged, got %q", out)
	}
	if strings.Contains(out, "rx frame") {
		t.Fatalf("expected frame line suppressed at LevelEvent, got %q", out)
	}
}

func TestFrameLevelLogsFramesAndHex(t *testing.T) {
	l, buf := newCapturingLogger(LevelFrame)
	l.Framef("rx frame")
	l.FrameHex("tx", []byte{0xA7, 0x01})
	out := buf.String()
	if !strings.Contains(out, "rx frame") {
		t.Fatalf("expected frame line logged, got %q", out)
	}
	if !strings.Contains(out, "a701") {
		t.Fatalf("expected hex dump logged, got %q", out)
	}
}

func TestLevelFromEnvParsesDigits(t *testing.T) {
	t.Setenv("LIBCONTROLCHAIN_DEBUG", "2")
	if got := LevelFromEnv(); got != LevelFrame {
		t.Fatalf("LevelFromEnv() = %v, want LevelFrame", got)
	}

	t.Setenv("LIBCONTROLCHAIN_DEBUG", "1")
	if got := LevelFromEnv(); got != LevelEvent {
		t.Fatalf("LevelFromEnv() = %v, want LevelEvent", got)
	}

	t.Setenv("LIBCONTROLCHAIN_DEBUG", "")
	if got := LevelFromEnv(); got != LevelSilent {
		t.Fatalf("LevelFromEnv() = %v, want LevelSilent", got)
	}
}

func TestSetDefaultSwaps(t *testing.T) {
	l, buf := newCapturingLogger(LevelEvent)
	SetDefault(l)
	defer SetDefault(New(LevelSilent, nil))

	Eventf("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("expected Default()/SetDefault() to route through the swapped logger")
	}
}
