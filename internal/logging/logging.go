// Package logging provides structured logging configuration.
//
// Raw sensitive values must never be logged; handlers log public aliases and
// route metadata only.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
	Silent bool   // drop all output
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Silent {
		return zap.NewNop(), nil
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "masq")), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// Alias returns a zap field for a public alias. Never pass the original value.
func Alias(publicAlias string) zap.Field { return zap.String("alias", publicAlias) }

// Scheme returns a zap field for a generation scheme tag.
func Scheme(scheme string) zap.Field { return zap.String("scheme", scheme) }

// RouteID returns a zap field for a route identifier.
func RouteID(id string) zap.Field { return zap.String("route_id", id) }

// Mode returns a zap field for a proxy operating mode.
func Mode(mode string) zap.Field { return zap.String("mode", mode) }

// Endpoint returns a zap field for an upstream endpoint.
func Endpoint(endpoint string) zap.Field { return zap.String("endpoint", endpoint) }

// RemoteAddr returns a zap field for a client address.
func RemoteAddr(addr string) zap.Field { return zap.String("remote_addr", addr) }

// Count returns a zap field for a row or item count.
func Count(n int64) zap.Field { return zap.Int64("count", n) }

// Phase returns a zap field for a rewrite phase.
func Phase(phase string) zap.Field { return zap.String("phase", phase) }
