// Package logger builds the structured logger shared by the server and the CLI.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/trace"
)

// Config captures runtime metadata used to annotate logs.
type Config struct {
	Service string
	Version string
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

// NewLogger builds a kratos logger with trace/span enrichment and a level filter.
func NewLogger(cfg Config) log.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	filtered := log.NewFilter(log.NewStdLogger(out), log.FilterLevel(log.ParseLevel(cfg.Level)))
	return log.With(
		filtered,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", cfg.Service,
		"service.version", cfg.Version,
		"trace_id", traceID(),
		"span_id", spanID(),
	)
}

func traceID() log.Valuer {
	return func(ctx context.Context) interface{} {
		sc := trace.SpanContextFromContext(ctx)
		if sc.HasTraceID() {
			return sc.TraceID().String()
		}
		return ""
	}
}

func spanID() log.Valuer {
	return func(ctx context.Context) interface{} {
		sc := trace.SpanContextFromContext(ctx)
		if sc.HasSpanID() {
			return sc.SpanID().String()
		}
		return ""
	}
}
