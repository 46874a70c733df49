package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.SugaredLogger = zap.NewNop().Sugar()

// Init builds the application logger: JSON lines to a rotated file plus
// console output. In dev the console encoder is human readable.
func Init(env string) {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		panic("create logs directory failed: " + err.Error())
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename: "logs/app.log",
			MaxSize:  100,
			MaxAge:   28,
			Compress: true,
		}),
		zap.InfoLevel,
	)

	consoleEncoder := zapcore.NewJSONEncoder(encoderConfig)
	if env == "dev" {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zap.InfoLevel)

	logger = zap.New(zapcore.NewTee(fileCore, consoleCore)).Sugar()
}

// L returns the shared application logger.
func L() *zap.SugaredLogger {
	return logger
}

func Sync() {
	_ = logger.Sync()
}
