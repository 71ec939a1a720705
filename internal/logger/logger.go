package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a line oriented console logger writing to stdout with the given
// level and default fields.
func New(level string, defaultFields map[string]any) *zap.Logger {
	return NewWithWriter(os.Stdout, level, defaultFields)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, defaultFields map[string]any) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(getLevel(level)),
	)
	var fields []zap.Field
	for k, v := range defaultFields {
		fields = append(fields, zap.Any(k, v))
	}
	return zap.New(core).With(fields...)
}

func getLevel(level string) zapcore.Level {
	levelMap := map[string]zapcore.Level{
		"error":   zap.ErrorLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"info":    zap.InfoLevel,
		"debug":   zap.DebugLevel,
	}
	l, ok := levelMap[strings.ToLower(level)]
	if !ok {
		return zap.InfoLevel
	}
	return l
}
