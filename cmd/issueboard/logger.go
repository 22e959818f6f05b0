package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. JSON to stderr by default; when
// LOG_FILE is set, output also goes through a size-rotated file.
func newLogger() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.InfoLevel),
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		cores = append(cores, zapcore.NewCore(encoder, rotated, zapcore.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}
