package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/tagcache"
)

func TestLoggerFields(t *testing.T) {
	lg, hook := test.NewNullLogger()
	lg.SetLevel(logrus.DebugLevel)
	l := Logger{E: logrus.NewEntry(lg)}

	boom := errors.New("boom")
	l.Error("mutation failed", tagcache.Fields{"id": "m-1", "err": boom})
	l.Info("store reset", nil)

	if len(hook.AllEntries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hook.AllEntries()))
	}
	first := hook.AllEntries()[0]
	if first.Level != logrus.ErrorLevel || first.Data["id"] != "m-1" || first.Data[logrus.ErrorKey] != boom {
		t.Fatalf("unexpected entry %+v", first.Data)
	}
	if last := hook.LastEntry(); last.Message != "store reset" || len(last.Data) != 0 {
		t.Fatalf("unexpected entry %+v", last)
	}
}

func TestNewLevel(t *testing.T) {
	if got := New("warn").Logger.GetLevel(); got != logrus.WarnLevel {
		t.Fatalf("level = %v", got)
	}
	if got := New("nonsense").Logger.GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("fallback level = %v", got)
	}
}
