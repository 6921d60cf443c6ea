package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runIDKey 一次模拟运行的唯一标识，放在 ctx 里，日志自动带出
type runIDKey struct{}

// 全局 Logger 实例
var Log = zap.NewNop()

// atomic level，配置热更新时可以直接改
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init 初始化日志组件
// serviceName: 当前程序名 (例如 "tick-simulator")
// lvl: 日志级别 (debug, info, warn, error)
func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "")
}

// InitWithFile 初始化日志组件，logFile 为空时只写控制台
func InitWithFile(serviceName string, lvl string, logFile string) {
	SetLevel(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			// 追加模式；打开失败只输出到控制台，不中断程序
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)

	// 封装了一层函数，所以 Skip 1，否则行号永远指向 logger.go
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// SetLevel 修改全局日志级别，非法值回落到 info
func SetLevel(lvl string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(lvl)); err != nil {
		zapLevel = zap.InfoLevel
	}
	level.SetLevel(zapLevel)
}

// WithRunID 把 runID 挂到 ctx 上
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID 从 ctx 读取 runID
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, withRun(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, withRun(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, withRun(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, withRun(ctx, fields)...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, withRun(ctx, fields)...)
}

func withRun(ctx context.Context, fields []zap.Field) []zap.Field {
	if id := RunID(ctx); id != "" {
		fields = append(fields, zap.String("run_id", id))
	}
	return fields
}

// Sync 刷新缓冲区 (main 里 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
