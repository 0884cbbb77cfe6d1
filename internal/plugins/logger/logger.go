// Package logger provides a request-logger plugin that records each pipeline
// invocation to structured logs. Register it with a blank import:
//
//	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/logger"
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/upskiller-xyz/lux-gateway/internal/logging"
	"github.com/upskiller-xyz/lux-gateway/internal/requestlog"
	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("request-logger", func() plugin.Plugin {
		return &RequestLogger{}
	})
}

// RequestLogger is a logging plugin that emits structured log entries
// for every pipeline invocation flowing through the gateway.
type RequestLogger struct {
	logLevel slog.Level
	writer   requestlog.Writer
}

// Name returns the plugin identifier.
func (l *RequestLogger) Name() string { return "request-logger" }

// Type returns the plugin lifecycle hook type.
func (l *RequestLogger) Type() plugin.PluginType { return plugin.TypeLogging }

// Init configures the plugin from the provided options map.
func (l *RequestLogger) Init(config map[string]interface{}) error {
	l.logLevel = slog.LevelInfo
	l.writer = requestlog.NoopWriter{}
	if level, ok := config["level"].(string); ok {
		switch level {
		case "debug":
			l.logLevel = slog.LevelDebug
		case "warn":
			l.logLevel = slog.LevelWarn
		case "error":
			l.logLevel = slog.LevelError
		}
	}

	persist, _ := config["persist"].(bool)
	if persist {
		backend, _ := config["backend"].(string)
		dsn, _ := config["dsn"].(string)
		switch strings.ToLower(strings.TrimSpace(backend)) {
		case "sqlite", "":
			writer, err := requestlog.NewSQLiteWriter(dsn)
			if err != nil {
				return err
			}
			l.writer = writer
		case "postgres", "postgresql":
			writer, err := requestlog.NewPostgresWriter(dsn)
			if err != nil {
				return err
			}
			l.writer = writer
		default:
			return fmt.Errorf("unsupported request log backend %q", backend)
		}
	}
	return nil
}

// Execute runs the plugin logic for the current pipeline invocation. The same
// instance is registered at before_request and after_request; a metadata flag
// set on the first call distinguishes the second pass from the first.
func (l *RequestLogger) Execute(ctx context.Context, pctx *plugin.Context) error {
	log := logging.FromContext(ctx)
	traceID := logging.TraceIDFromContext(ctx)
	now := time.Now().UTC()

	windowCount := 0
	if pctx.Accumulator != nil {
		windowCount = len(pctx.Accumulator.Windows)
	}

	seenBefore := pctx.Metadata["request_logger_seen"] == true
	pctx.Metadata["request_logger_seen"] = true

	switch {
	case pctx.Error != nil:
		log.Log(ctx, slog.LevelError, "pipeline invocation error",
			"endpoint", pctx.Endpoint,
			"error", pctx.Error.Error(),
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.writer.Write(ctx, requestlog.Entry{
			TraceID:      traceID,
			Stage:        string(plugin.StageOnError),
			Endpoint:     string(pctx.Endpoint),
			WindowCount:  windowCount,
			ErrorMessage: pctx.Error.Error(),
			CreatedAt:    now,
		})
	case pctx.Reject:
		log.Log(ctx, l.logLevel, "pipeline invocation rejected",
			"endpoint", pctx.Endpoint,
			"reason", pctx.Reason,
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.writer.Write(ctx, requestlog.Entry{
			TraceID:      traceID,
			Stage:        string(plugin.StageBeforeRequest),
			Endpoint:     string(pctx.Endpoint),
			WindowCount:  windowCount,
			ErrorMessage: pctx.Reason,
			CreatedAt:    now,
		})
	case !seenBefore:
		log.Log(ctx, l.logLevel, "pipeline invocation received",
			"endpoint", pctx.Endpoint,
			"windows", windowCount,
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.writer.Write(ctx, requestlog.Entry{
			TraceID:     traceID,
			Stage:       string(plugin.StageBeforeRequest),
			Endpoint:    string(pctx.Endpoint),
			WindowCount: windowCount,
			CreatedAt:   now,
		})
	default:
		log.Log(ctx, l.logLevel, "pipeline invocation completed",
			"endpoint", pctx.Endpoint,
			"windows", windowCount,
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.writer.Write(ctx, requestlog.Entry{
			TraceID:     traceID,
			Stage:       string(plugin.StageAfterRequest),
			Endpoint:    string(pctx.Endpoint),
			WindowCount: windowCount,
			CreatedAt:   now,
		})
	}

	return nil
}
