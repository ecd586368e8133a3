package jobs

import "go.uber.org/zap"

// loggerAdapter routes asynq's internal logging through zap.
type loggerAdapter struct {
	log *zap.SugaredLogger
}

func newLoggerAdapter(logger *zap.Logger) *loggerAdapter {
	return &loggerAdapter{log: logger.Named("asynq").Sugar()}
}

func (l *loggerAdapter) Debug(args ...any) { l.log.Debug(args...) }
func (l *loggerAdapter) Info(args ...any)  { l.log.Info(args...) }
func (l *loggerAdapter) Warn(args ...any)  { l.log.Warn(args...) }
func (l *loggerAdapter) Error(args ...any) { l.log.Error(args...) }
func (l *loggerAdapter) Fatal(args ...any) { l.log.Fatal(args...) }
