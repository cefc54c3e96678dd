package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the shared instance. Packages normally go through the
	// package-level helpers below instead of touching it directly.
	Logger *logrus.Logger

	initOnce sync.Once
)

// Config controls level, console/file output and rotation.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty = console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int    // rotated files to keep
	MaxAge     int    // days to keep rotated files
	Compress   bool
}

// Init configures the shared logger. Safe to call once at startup;
// later calls replace level/outputs.
func Init(cfg Config) error {
	ensure()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.OutputFile == "" {
		Logger.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
		return err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.OutputFile,
		MaxSize:    orDefault(cfg.MaxSize, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAge, 30),
		Compress:   cfg.Compress,
	}
	Logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return nil
}

// InitDefault sets up a console-only info-level logger.
func InitDefault() {
	_ = Init(Config{Level: "info"})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func ensure() *logrus.Logger {
	initOnce.Do(func() {
		Logger = logrus.New()
		Logger.SetOutput(os.Stdout)
	})
	return Logger
}

func Debug(args ...interface{})                 { ensure().Debug(args...) }
func Debugf(format string, args ...interface{}) { ensure().Debugf(format, args...) }
func Info(args ...interface{})                  { ensure().Info(args...) }
func Infof(format string, args ...interface{})  { ensure().Infof(format, args...) }
func Warn(args ...interface{})                  { ensure().Warn(args...) }
func Warnf(format string, args ...interface{})  { ensure().Warnf(format, args...) }
func Error(args ...interface{})                 { ensure().Error(args...) }
func Errorf(format string, args ...interface{}) { ensure().Errorf(format, args...) }

// WithField returns an entry with one structured field attached.
func WithField(key string, value interface{}) *logrus.Entry {
	return ensure().WithField(key, value)
}

// WithFields returns an entry with several structured fields attached.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return ensure().WithFields(fields)
}
