// Package logger 构建两个进程共用的 zap 日志器，支持文件轮转与噪声过滤。
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"gmailbulker/internal/config"
)

// 轮转默认值
const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

// Config 日志配置
type Config struct {
	// Name 日志器名称，写入每条日志的 logger 字段
	Name        string
	Level       string
	Development bool

	// LogFile 为空时只写 stderr
	LogFile    string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	// Suppress 为 nil 时不过滤
	Suppress SuppressFunc
}

// FromConfig 把应用配置中的日志段转换成 Config，并填入轮转默认值
//
// 参数:
//   - cfg: 应用配置的日志段
//   - name: 进程名，如 "relay"、"bulker"
func FromConfig(cfg config.LogConfig, name string) Config {
	c := Config{
		Name:        name,
		Level:       cfg.Level,
		Development: cfg.Development,
		LogFile:     cfg.File,
		MaxSize:     defaultMaxSizeMB,
		MaxBackups:  defaultMaxBackups,
		MaxAge:      defaultMaxAgeDays,
		Compress:    true,
	}
	if cfg.Suppress {
		c.Suppress = DefaultSuppressor()
	}
	return c
}

// NewLogger 创建日志记录器
//
// 开发模式使用彩色控制台编码并在 error 级别附带堆栈，其余情况输出 JSON。
// stdout 留给命令输出，日志一律写 stderr（以及可选的轮转文件）。
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, err := openSink(cfg)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Development), sink, level)
	if cfg.Suppress != nil {
		core = NewFilterCore(core, cfg.Suppress)
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log := zap.New(core, opts...)
	if cfg.Name != "" {
		log = log.Named(cfg.Name)
	}
	return log, nil
}

// NewDevelopmentLogger 创建开发环境日志记录器，失败时退化为空日志器
func NewDevelopmentLogger() *zap.Logger {
	log, err := NewLogger(Config{
		Level:       "debug",
		Development: true,
		Suppress:    DefaultSuppressor(),
	})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newEncoder(development bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	if development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openSink(cfg Config) (zapcore.WriteSyncer, error) {
	stderr := zapcore.Lock(os.Stderr)
	if cfg.LogFile == "" {
		return stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.NewMultiWriteSyncer(zapcore.AddSync(rotator), stderr), nil
}
