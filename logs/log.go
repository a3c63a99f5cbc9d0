package logs

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	sugar    *zap.SugaredLogger
)

// Options 日志初始化参数
type Options struct {
	Level      string // trace/debug/verbose/info/warn/error
	File       string // 为空时只输出到控制台
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

func init() {
	sugar = newConsoleCore(zapcore.DebugLevel).Sugar()
}

func newConsoleCore(level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init 按配置重建全局 logger：控制台 + 可选的 lumberjack 滚动文件
func Init(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var cores []zapcore.Core
	if opts.Console || opts.File == "" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(zapcore.DebugLevel)))
	}
	if opts.File != "" {
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), writer, zap.NewAtomicLevelAt(zapcore.DebugLevel)))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
	sugar = logger.Sugar()
	logLevel = lvl
	return nil
}

// ReplaceCore 直接替换底层 core（测试里挂 observer 用）
func ReplaceCore(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	sugar = zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

// ParseLevel 解析配置中的级别名
func ParseLevel(s string) (int, error) {
	switch s {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	mu.Lock()
	defer mu.Unlock()
	logLevel = level
}

// GetLevel 当前全局日志级别
func GetLevel() int {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// Sync 刷新缓冲（进程退出前调用）
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Sync()
}

func enabled(level int) (*zap.SugaredLogger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return sugar, logLevel <= level
}

// 包级别的日志方法
// zap 没有 trace/verbose，这两级都落到 debug，过滤仍按本包的级别做
func Trace(format string, v ...interface{}) {
	if l, ok := enabled(LevelTrace); ok {
		l.Debugf("[TRACE] "+format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if l, ok := enabled(LevelDebug); ok {
		l.Debugf(format, v...)
	}
}

func Verbose(format string, v ...interface{}) {
	if l, ok := enabled(LevelVerbose); ok {
		l.Debugf("[VERBOSE] "+format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if l, ok := enabled(LevelInfo); ok {
		l.Infof(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if l, ok := enabled(LevelWarning); ok {
		l.Warnf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if l, ok := enabled(LevelError); ok {
		l.Errorf(format, v...)
	}
}
