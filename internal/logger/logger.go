// Package logger builds the process zap logger from level and format settings.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds a logger writing to w. Unknown levels fall back to info.
func New(cfg Config, w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if l, err := zapcore.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = l
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

// Init replaces the global logger and installs it as zap's global. A nil w
// writes to stderr so stdout stays free for command output.
func Init(cfg Config, w io.Writer) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := New(cfg, w)
	mu.Lock()
	global = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return l
}

// Sync flushes buffered entries of the global logger.
func Sync() {
	mu.Lock()
	l := global
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
