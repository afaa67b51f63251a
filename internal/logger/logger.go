package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 日志级别
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat 日志格式
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config 日志配置
type Config struct {
	Level      LogLevel  `yaml:"level" json:"level"`
	Format     LogFormat `yaml:"format" json:"format"`
	Output     string    `yaml:"output" json:"output"`           // stdout, stderr, file
	Filename   string    `yaml:"filename" json:"filename"`       // 日志文件路径
	MaxSize    int       `yaml:"max_size" json:"max_size"`       // 单个日志文件最大大小(MB)
	MaxAge     int       `yaml:"max_age" json:"max_age"`         // 日志文件保留天数
	MaxBackups int       `yaml:"max_backups" json:"max_backups"` // 最大备份文件数
	Compress   bool      `yaml:"compress" json:"compress"`
	Caller     bool      `yaml:"caller" json:"caller"`
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	Level:      LevelInfo,
	Format:     FormatJSON,
	Output:     "stdout",
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 10,
	Compress:   true,
}

// Logger 日志器接口
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// StructuredLogger 结构化日志器
type StructuredLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	config Config
	mu     *sync.RWMutex
}

type ctxKey string

// RequestIDKey is the context key under which the request middleware stores the request ID.
const RequestIDKey ctxKey = "request_id"

// NewLogger 创建新的日志器
func NewLogger(config Config) Logger {
	return newStructuredLogger(config, nil)
}

// NewLoggerWithWriter builds a logger writing to w regardless of config.Output.
func NewLoggerWithWriter(config Config, w io.Writer) Logger {
	return newStructuredLogger(config, w)
}

func newStructuredLogger(config Config, w io.Writer) *StructuredLogger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	prettyCaller := func(f *runtime.Frame) (string, string) {
		return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	if config.Format == FormatText {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	}

	if w == nil {
		w = outputFor(&config)
	}
	logger.SetOutput(w)
	logger.SetReportCaller(config.Caller)

	return &StructuredLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		config: config,
		mu:     &sync.RWMutex{},
	}
}

func outputFor(config *Config) io.Writer {
	switch config.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if config.Filename == "" {
			config.Filename = "logs/schwabgw.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0755); err != nil {
			fmt.Printf("Failed to create log directory: %v\n", err)
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   config.Filename,
			MaxSize:    config.MaxSize,
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		}
	default:
		return os.Stdout
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields...)
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields...)
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields...)
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.logWithFields(logrus.ErrorLevel, msg, fields...)
}

// WithField 添加单个字段
func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return l.derive(l.entry.WithField(key, value))
}

// WithFields 添加多个字段
func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(l.entry.WithFields(fields))
}

// WithContext 添加上下文，提取请求ID
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	entry := l.entry.WithContext(ctx)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return l.derive(entry)
}

func (l *StructuredLogger) derive(entry *logrus.Entry) *StructuredLogger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  entry,
		config: l.config,
		mu:     l.mu,
	}
}

// SetLevel 设置日志级别
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		return
	}
	l.logger.SetLevel(logrusLevel)
	l.config.Level = level
}

// GetLevel 获取日志级别
func (l *StructuredLogger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

// logWithFields 记录带字段的日志，fields 为 key/value 交替排列
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields ...interface{}) {
	entry := l.entry
	if len(fields) > 0 {
		fieldMap := make(map[string]interface{}, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			if key, ok := fields[i].(string); ok {
				fieldMap[key] = fields[i+1]
			}
		}
		if len(fieldMap) > 0 {
			entry = entry.WithFields(fieldMap)
		}
	}
	entry.Log(level, msg)
}

// Redact masks a secret, keeping only the last four characters.
func Redact(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewLogger(DefaultConfig)
)

// Init 初始化全局日志器
func Init(config Config) {
	SetGlobalLogger(NewLogger(config))
}

// SetGlobalLogger 设置全局日志器
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger 获取全局日志器
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func Debug(msg string, fields ...interface{}) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...interface{})  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { GetGlobalLogger().Error(msg, fields...) }

// WithContext 添加上下文
func WithContext(ctx context.Context) Logger {
	return GetGlobalLogger().WithContext(ctx)
}

// HTTPRequestInfo HTTP请求信息
type HTTPRequestInfo struct {
	Method     string
	Path       string
	StatusCode int
	Latency    time.Duration
	ClientIP   string
	UserAgent  string
	BodySize   int
	RequestID  string
}

// LogHTTPRequest 记录HTTP请求日志，按状态码选择级别
func LogHTTPRequest(l Logger, info HTTPRequestInfo) {
	fields := map[string]interface{}{
		"method":      info.Method,
		"path":        info.Path,
		"status_code": info.StatusCode,
		"latency":     info.Latency.String(),
		"client_ip":   info.ClientIP,
		"user_agent":  info.UserAgent,
		"body_size":   info.BodySize,
	}
	if info.RequestID != "" {
		fields["request_id"] = info.RequestID
	}

	msg := fmt.Sprintf("%s %s - %d", info.Method, info.Path, info.StatusCode)
	entry := l.WithFields(fields)
	switch {
	case info.StatusCode >= 500:
		entry.Error(msg)
	case info.StatusCode >= 400:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}
