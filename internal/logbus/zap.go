package logbus

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger builds the console/JSON logger that mirrors bus output.
func NewZapLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// AttachZap forwards every log message published on the bus to logger until
// the returned stop function is called. stop drains pending messages.
func AttachZap(b *Bus, logger *zap.Logger) (stop func()) {
	ch, cancel := b.Subscribe(512, TypeLog)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			WriteZap(logger, msg)
		}
	}()
	return func() {
		cancel()
		<-done
		_ = logger.Sync()
	}
}

func WriteZap(logger *zap.Logger, msg Message) {
	data, ok := msg.Data.(LogData)
	if !ok {
		return
	}
	fields := make([]zap.Field, 0, len(data.Fields))
	for k, v := range data.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch strings.ToLower(data.Level) {
	case "debug":
		logger.Debug(data.Msg, fields...)
	case "warn", "warning":
		logger.Warn(data.Msg, fields...)
	case "error":
		logger.Error(data.Msg, fields...)
	default:
		logger.Info(data.Msg, fields...)
	}
}
