package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/survivor-indexer/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 模块名
const (
	ModuleIndexer  = "indexer"
	ModuleStream   = "stream"
	ModuleDatabase = "database"
	ModuleAPI      = "api"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	once   sync.Once
	mu     sync.RWMutex

	// 模块日志器
	moduleLoggers map[string]*zap.Logger
)

// Init 初始化日志系统
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		moduleLoggers = make(map[string]*zap.Logger)
		level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

		encoder := newEncoder(cfg.Format)

		var cores []zapcore.Core

		// 控制台输出
		if cfg.Output == "stdout" || cfg.Output == "both" {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
		}

		// 文件输出（lumberjack负责轮转）
		if cfg.Output == "file" || cfg.Output == "both" {
			if err = os.MkdirAll(cfg.File.Path, 0755); err != nil {
				return
			}

			cores = append(cores,
				zapcore.NewCore(encoder, zapcore.AddSync(rotatingWriter(cfg.File, cfg.File.Filename)), level),
				zapcore.NewCore(encoder, zapcore.AddSync(rotatingWriter(cfg.File, "error.log")), zapcore.ErrorLevel),
			)
		}

		if len(cores) == 0 {
			err = fmt.Errorf("不支持的日志输出: %s", cfg.Output)
			return
		}

		logger = zap.New(
			zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		sugar = logger.Sugar()

		// 模块日志器共享输出，可单独调整级别
		for module, levelStr := range cfg.Modules {
			moduleLevel := parseLevel(levelStr)
			moduleLoggers[module] = logger.
				WithOptions(zap.IncreaseLevel(moduleLevel)).
				Named(module)
		}
	})

	return err
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func rotatingWriter(cfg config.LogFileConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, filename),
		MaxSize:    cfg.MaxSize,    // MB
		MaxAge:     cfg.MaxAge,     // days
		MaxBackups: cfg.MaxBackups, // 保留文件数
		Compress:   cfg.Compress,
	}
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		// 未初始化时使用默认配置
		defaultLogger, _ := zap.NewProduction()
		return defaultLogger
	}
	return logger
}

// GetSugar 获取Sugar日志器
func GetSugar() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s == nil {
		return GetLogger().Sugar()
	}
	return s
}

// GetModuleLogger 获取模块日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	moduleLogger, ok := moduleLoggers[module]
	mu.RUnlock()

	if ok {
		return moduleLogger
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// SetLevel 动态设置日志级别
func SetLevel(levelStr string) {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		level.SetLevel(parseLevel(levelStr))
	}
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// Infof 格式化输出信息日志
func Infof(template string, args ...interface{}) {
	GetSugar().Infof(template, args...)
}

// Errorf 格式化输出错误日志
func Errorf(template string, args ...interface{}) {
	GetSugar().Errorf(template, args...)
}

// WithModule 创建带有模块名的日志器
func WithModule(module string) *zap.Logger {
	return GetModuleLogger(module)
}

// LogIndexerEvent 记录已应用的链上事件
func LogIndexerEvent(log *zap.Logger, event string, blockNumber uint64, adventurerID string, duration time.Duration) {
	log.Debug("event_applied",
		zap.String("event", event),
		zap.Uint64("block", blockNumber),
		zap.String("adventurer_id", adventurerID),
		zap.Duration("duration", duration),
	)
}

// LogStreamMessage 记录事件流消息
func LogStreamMessage(messageType string, blockNumber uint64, eventCount int) {
	GetModuleLogger(ModuleStream).Debug("stream_message",
		zap.String("type", messageType),
		zap.Uint64("block", blockNumber),
		zap.Int("events", eventCount),
	)
}

// LogDatabaseOperation 记录数据库操作
func LogDatabaseOperation(operation string, table string, duration time.Duration, err error) {
	log := GetModuleLogger(ModuleDatabase)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		log.Error("database_operation_failed", fields...)
	} else {
		log.Debug("database_operation", fields...)
	}
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string, requestID string) {
	GetModuleLogger(ModuleAPI).Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
		zap.String("request_id", requestID),
	)
}

// LogPanic 记录panic日志
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// Cleanup 清理日志资源
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}
