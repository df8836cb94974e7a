package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tagcache"
)

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Warn("fetch failed", tagcache.Fields{"key": "ads:1", "err": errors.New("boom")})
	l.Debug("tags invalidated", nil)

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel || ctx["key"] != "ads:1" || ctx["error"] != "boom" {
		t.Fatalf("unexpected entry %+v ctx=%v", entries[0].Entry, ctx)
	}
	if entries[1].Level != zapcore.DebugLevel || len(entries[1].Context) != 0 {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := New("debug"); err != nil {
		t.Fatalf("New: %v", err)
	}
}
