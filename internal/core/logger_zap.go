package core

import "go.uber.org/zap"

// ZapLogger adapts a zap sugared logger to the Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger. A nil logger yields a production
// logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		var err error
		l, err = zap.NewProduction()
		if err != nil {
			panic(err)
		}
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// Debug logs at debug level with alternating key/value context.
func (z *ZapLogger) Debug(msg string, keysAndValues ...any) {
	z.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at info level with alternating key/value context.
func (z *ZapLogger) Info(msg string, keysAndValues ...any) {
	z.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at warn level with alternating key/value context.
func (z *ZapLogger) Warn(msg string, keysAndValues ...any) {
	z.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at error level with alternating key/value context.
func (z *ZapLogger) Error(msg string, keysAndValues ...any) {
	z.sugar.Errorw(msg, keysAndValues...)
}
