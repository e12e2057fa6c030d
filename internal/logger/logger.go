// Package logger configures the process-wide slog JSON logger and carries
// the per-cycle correlation ID through context.Context so every log line
// from one trading cycle can be grepped together.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type cycleKey struct{}

// Init builds the JSON logger for a service and installs it as the slog
// default, so package-level slog calls share the same output.
func Init(service string, level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	log = log.With(slog.String("service", service))
	slog.SetDefault(log)
	return log
}

// WithCycleID attaches a cycle ID to the context.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleKey{}, cycleID)
}

// CycleID returns the context's cycle ID, or "" outside a cycle.
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// GenerateCycleID derives the cycle ID from the cycle's start time. Cycle
// starts are aligned to interval boundaries, so the ID doubles as a stable
// name for the cycle across restarts.
func GenerateCycleID(ts time.Time) string {
	return "cycle-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// LogWithCycle returns the cycle-ID slog attribute for the context, or nil
// outside a cycle. Spread it into log calls:
// s.log.Info("msg", logger.LogWithCycle(ctx)...)
func LogWithCycle(ctx context.Context) []any {
	id := CycleID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("cycle_id", id)}
}
