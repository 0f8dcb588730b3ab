// Package logging builds the application logger: an ectologger front end
// feeding structured records into zap for output.
package logging

import (
	"encoding/json"
	"strings"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log output
type Config struct {
	// Level is the minimum level emitted: debug, info, warn, or error
	Level string
	// Pretty switches to human-readable console output for local development
	Pretty bool
}

// New creates the application logger. The returned flush func should run
// before process exit.
func New(cfg Config) (ectologger.Logger, func() error, error) {
	zl, err := buildZap(cfg)
	if err != nil {
		return nil, nil, err
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		writeRecord(zl, msg)
	})

	return logger, zl.Sync, nil
}

func buildZap(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	// The record already carries its own call site and timestamp
	return zapCfg.Build(zap.WithCaller(false))
}

// writeRecord forwards one structured record to zap. The record is decoded
// through JSON so the bridge does not depend on the message's field set.
func writeRecord(zl *zap.Logger, msg ectologger.EctoLogMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		zl.Error("unloggable record", zap.Error(err))
		return
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		zl.Info(string(raw))
		return
	}

	level := popString(record, "level", "Level")
	message := popString(record, "message", "Message", "msg")

	fields := make([]zap.Field, 0, len(record))
	for key, value := range record {
		if value == nil {
			continue
		}
		fields = append(fields, zap.Any(strings.ToLower(key), value))
	}

	switch strings.ToLower(level) {
	case "debug":
		zl.Debug(message, fields...)
	case "warn", "warning":
		zl.Warn(message, fields...)
	case "error":
		zl.Error(message, fields...)
	case "fatal":
		zl.Fatal(message, fields...)
	default:
		zl.Info(message, fields...)
	}
}

func popString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := record[key]; ok {
			delete(record, key)
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}
