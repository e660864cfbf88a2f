// Package logging builds the structured zap logger shared by every
// component. Callers receive a *zap.Logger via constructor injection rather
// than reaching for a package-level global, so components stay testable in
// isolation (pass zap.NewNop() in tests).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the logger is built.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Development enables human-readable console output instead of JSON.
	Development bool
}

// New builds a zap.Logger from Config. Errors only come from a malformed
// level string or a build failure in zap itself.
func New(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

func levelFromString(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: invalid level %q: %w", s, err)
	}
	return level, nil
}

// ErrorKind labels a zap field with the taxonomy from the error-handling
// design (timeout, transport, protocol, authentication, storage, config,
// internal) so ops logs stay machine-filterable without leaking into API
// responses.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "timeout"
	KindTransport      ErrorKind = "transport"
	KindProtocol       ErrorKind = "protocol"
	KindAuthentication ErrorKind = "authentication"
	KindStorage        ErrorKind = "storage"
	KindConfig         ErrorKind = "config"
	KindInternal       ErrorKind = "internal"
)

// Field returns the zap field conventionally used to tag an ErrorKind.
func (k ErrorKind) Field() zap.Field {
	return zap.String("error_kind", string(k))
}
