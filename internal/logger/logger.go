package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// L 是全局 SugaredLogger，各模块通过包级函数使用。
	L *zap.SugaredLogger
	// Z 是底层 zap.Logger。
	Z *zap.Logger

	rotator *lumberjack.Logger
)

func init() {
	z, _ := zap.NewProduction()
	Z = z
	L = z.Sugar()
}

// Config 日志配置。
type Config struct {
	Level      string // debug, info, warn, error
	File       string // 为空则只输出到 stderr
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // 天
}

// ParseLevel 将配置中的级别字符串转换为 zapcore.Level，空字符串视为 info。
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("不支持的日志级别: %s", level)
}

// Init 根据配置重建全局 logger。
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var output io.Writer = os.Stderr
	if cfg.File != "" {
		w, err := newRotator(cfg)
		if err != nil {
			return err
		}
		rotator = w
		output = io.MultiWriter(os.Stderr, w)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(output), level)
	Z = zap.New(core, zap.AddCallerSkip(1))
	L = Z.Sugar()
	return nil
}

func newRotator(cfg Config) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSize, 32),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAge, 14),
		Compress:   true,
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Sync 刷新缓冲并关闭日志文件，程序退出前调用。
func Sync() {
	if Z != nil {
		_ = Z.Sync()
	}
	if rotator != nil {
		_ = rotator.Close()
	}
}

func Debugf(template string, args ...interface{}) { L.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L.Errorf(template, args...) }

func Info(msg string) { L.Info(msg) }
func Warn(msg string) { L.Warn(msg) }
