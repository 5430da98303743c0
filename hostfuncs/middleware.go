package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"
)

// Middleware wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next Handler) Handler

// PanicRecoveryMiddleware returns a middleware that recovers panics raised
// while serving a guest callback, so a faulty handler can never take down the
// host or abort the filter call that invoked it.
func PanicRecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, mem GuestMemory, args []uint64) {
			defer func() {
				if r := recover(); r != nil {
					funcName := "unknown"
					if hc, ok := ctx.(HostContext); ok {
						funcName = hc.FunctionName()
					}
					logger.ErrorContext(ctx, "host function panic recovered",
						"function", funcName, "panic", fmt.Sprint(r))
				}
			}()
			next(ctx, mem, args)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations
// at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, mem GuestMemory, args []uint64) {
			funcName := "unknown"
			if hc, ok := ctx.(HostContext); ok {
				funcName = hc.FunctionName()
			}
			logger.DebugContext(ctx, "invoking host function", "function", funcName, "args", len(args))
			next(ctx, mem, args)
		}
	}
}
