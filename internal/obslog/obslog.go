// Package obslog holds the process-wide zap logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger atomic.Pointer[zap.Logger]

func init() { globalLogger.Store(zap.NewNop()) }

// Config selects log outputs. Format is one of legacy, json or console.
type Config struct {
	Level   string `yaml:"level" env:"LEVEL"`
	Format  string `yaml:"format" env:"FORMAT"`
	Console bool   `yaml:"console" env:"TO_CONSOLE"`
	ToFile  bool   `yaml:"to_file" env:"TO_FILE"`
	File    string `yaml:"file" env:"FILE"`
	Caller  bool   `yaml:"caller" env:"CALLER"`
}

// DefaultConfig logs json to stdout only.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Console: true, File: filepath.Join("logs", "tictac.log")}
}

// L는 전역 로거를 반환. Init 성공 전에는 no-op 로거.
func L() *zap.Logger { return globalLogger.Load() }

// 설정(cfg)으로 전역 로거 초기화. 콘솔+파일 동시 출력 지원.
func Init(cfg Config) error {
	logger, err := Build(cfg)
	if err != nil {
		return err
	}
	globalLogger.Store(logger)
	return nil
}

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}
	prev := globalLogger.Swap(l)
	return func() { globalLogger.Store(prev) }
}

func Build(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format != "legacy" && format != "json" && format != "console" {
		format = "json"
	}
	var cores []zapcore.Core

	if cfg.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(os.Stdout), level))
	}

	if cfg.ToFile {
		path := strings.TrimSpace(cfg.File)
		if path == "" {
			path = DefaultConfig().File
		}
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(f), level))
	}

	if len(cores) == 0 {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if cfg.Caller || format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func encoderFor(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig())
	default:
		return zapcore.NewConsoleEncoder(legacyEncoderConfig())
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func legacyEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}
