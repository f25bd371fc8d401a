// Package logging builds the application logger: human-readable output on
// stderr plus a rotated JSON log file under the user's data directory.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "simple-stt.log"

// New creates a logger writing to stderr at the given level and to a
// rotating file at info level. verbose forces debug on the console, matching
// the -verbose flag. dataDir may be empty, in which case the file sink is
// skipped.
func New(level string, verbose bool, dataDir string) (*zap.Logger, error) {
	consoleLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		consoleLevel = zapcore.DebugLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleCfg),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	if dataDir == "" {
		return zap.New(console), nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dataDir, logFileName),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	})

	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		fileSink,
		zapcore.InfoLevel,
	)

	return zap.New(zapcore.NewTee(console, file)), nil
}
