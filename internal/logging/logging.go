// Package logging wraps zap with the structured-logging shape the rest of
// the engine expects: one logger handle per process, passed down as a
// dependency rather than reached for as a package-level global.
package logging

import (
	"arbengine/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger from LoggingConfig. Format "console" uses zap's
// development (console) config; any other value, including "json", uses
// zap's production JSON config.
func New(cfg config.LoggingConfig, service string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}

// Nop returns a no-op logger, used by tests that don't care about log output.
func Nop() *zap.Logger { return zap.NewNop() }
