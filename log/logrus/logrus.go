// Package logrus adapts a *logrus.Entry to tagcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/tagcache"
)

var _ tagcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f tagcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f tagcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f tagcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f tagcache.Fields) { l.with(f).Error(msg) }

// with moves an error under "err" to logrus' error key.
func (l Logger) with(f tagcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}

// New returns a JSON logrus entry at level; an unknown level means info.
func New(level string) *logrus.Entry {
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	lg.SetLevel(lvl)
	return logrus.NewEntry(lg)
}
