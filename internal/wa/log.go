package wa

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// waLogger adapts whatsmeow's logger interface onto zap.
type waLogger struct {
	s *zap.SugaredLogger
}

func newWALogger(l *zap.Logger) *waLogger {
	return &waLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (w *waLogger) Errorf(msg string, args ...interface{}) { w.s.Errorf(msg, args...) }
func (w *waLogger) Warnf(msg string, args ...interface{})  { w.s.Warnf(msg, args...) }
func (w *waLogger) Infof(msg string, args ...interface{})  { w.s.Infof(msg, args...) }
func (w *waLogger) Debugf(msg string, args ...interface{}) { w.s.Debugf(msg, args...) }

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{s: w.s.Named(module)}
}
