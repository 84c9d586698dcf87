package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	instance *zap.SugaredLogger
	once     sync.Once
)

// Config mirrors the app section of the server config: Env selects the
// encoder, Level optionally overrides the environment's default level.
type Config struct {
	Env   string // "production" switches to sampled JSON output
	Level string // zap level name; empty keeps the environment default
}

// New builds the process logger on first call; later calls return the same
// instance regardless of config.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var err error
	once.Do(func() {
		zc := zap.NewDevelopmentConfig()
		if cfg.Env == "production" {
			zc = zap.NewProductionConfig()
		}
		if cfg.Level != "" {
			var lvl zapcore.Level
			if lvl, err = zapcore.ParseLevel(strings.ToLower(cfg.Level)); err != nil {
				return
			}
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
		var l *zap.Logger
		if l, err = zc.Build(); err != nil {
			return
		}
		instance = l.Sugar()
	})
	return instance, err
}

// Nop returns a no-op logger for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
