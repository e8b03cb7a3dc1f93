package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.Mutex
	log *zap.Logger = zap.NewNop()
)

// Init initializes the global logger. Safe to call again to switch
// between normal and debug level at runtime.
func Init(debug bool) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Development = true
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op logger rather than crashing at startup.
		log = zap.NewNop()
		return
	}
	log = l
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = log.Sync()
}

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }
