package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "critical", "fatal":
		return LevelCritical
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelCritical:
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

type Options struct {
	Level  LogLevel
	Format string // "json" or "console"
	Path   string // optional file output in addition to stderr

	// Rotation applies to Path at startup.
	MaxSize int64
	MaxAge  time.Duration
}

type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	file  *os.File
}

func NewLogger(opts Options) (*Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	var enc zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	level := zap.NewAtomicLevelAt(opts.Level.zapLevel())
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}

	var file *os.File
	if opts.Path != "" {
		if opts.MaxSize > 0 || opts.MaxAge > 0 {
			lr := NewLogRotation(opts.MaxSize, opts.MaxAge)
			if lr.ShouldRotate(opts.Path) {
				if _, err := lr.Rotate(opts.Path); err != nil {
					return nil, fmt.Errorf("failed to rotate log file: %w", err)
				}
			}
		}

		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))

	return &Logger{
		base:  base,
		sugar: base.Sugar(),
		file:  file,
	}, nil
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Critical never panics, even in development mode.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Errorw(fmt.Sprintf(format, args...), "critical", true)
}

// Zap returns the structured logger without the printf caller skip.
func (l *Logger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-2))
}

func (l *Logger) Close() error {
	_ = l.base.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	mu           sync.RWMutex
	GlobalLogger *Logger
)

func InitGlobalLogger(opts Options) error {
	logger, err := NewLogger(opts)
	if err != nil {
		return err
	}
	mu.Lock()
	GlobalLogger = logger
	mu.Unlock()
	return nil
}

// SetGlobal installs an already built logger (tests use zaptest/zap.NewNop).
func SetGlobal(z *zap.Logger) {
	mu.Lock()
	GlobalLogger = &Logger{
		base:  z.WithOptions(zap.AddCallerSkip(2)),
		sugar: z.WithOptions(zap.AddCallerSkip(2)).Sugar(),
	}
	mu.Unlock()
}

func global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

// L returns the global structured logger, or a no-op logger before init.
func L() *zap.Logger {
	if l := global(); l != nil {
		return l.Zap()
	}
	return zap.NewNop()
}

func Close() error {
	if l := global(); l != nil {
		return l.Close()
	}
	return nil
}

func Debug(format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Debug(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Info(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Warn(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Error(format, args...)
	}
}

func Critical(format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Critical(format, args...)
	}
}
