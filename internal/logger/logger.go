// Package logger builds the zap logger of the daemon.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum level, "debug", "info", "warn" or "error".
	Level string `toml:"level"`
	// Format is "json" or "console".
	Format string `toml:"format"`
	// Output is a file path, or "stdout" / "stderr".
	Output string `toml:"output"`

	// File rotation, only used when Output is a path.
	MaxSizeMB  int `toml:"max-size-mb"`
	MaxBackups int `toml:"max-backups"`
	MaxAgeDays int `toml:"max-age-days"`
}

// New creates a zap.Logger from config. Unknown levels fall back to info.
func New(config Config) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	writeSyncer := getWriteSyncer(config)

	core := zapcore.NewCore(getEncoder(config.Format), writeSyncer, logLevel)

	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", "featuretxn"))), nil
}

func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getWriteSyncer(config Config) zapcore.WriteSyncer {
	switch strings.ToLower(config.Output) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		// lumberjack opens the file lazily and creates missing directories.
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		})
	}
}
