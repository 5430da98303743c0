package hostfuncs

import (
	"context"
	"log/slog"

	"github.com/fogbridge/fogbridge/domain/entities"
)

// TriggerMarker is logged when the guest calls the no-argument form of env.log.
const TriggerMarker = "guest log trigger"

// LogFunctionName is the import name guests use for diagnostics.
const LogFunctionName = "log"

// GuestLogger is the Guest Logger Bridge: it turns env.log calls into host log
// records. It runs synchronously inside a filter call and performs no I/O
// beyond writing the log record.
type GuestLogger struct {
	logger  *slog.Logger
	observe func(entities.GuestLogMessage)
	maxLen  uint32
}

// GuestLoggerOption configures a GuestLogger.
type GuestLoggerOption func(*GuestLogger)

// WithMaxLogBytes bounds how many bytes one offset-form call may read.
func WithMaxLogBytes(n uint32) GuestLoggerOption {
	return func(g *GuestLogger) {
		if n > 0 {
			g.maxLen = n
		}
	}
}

// WithLogObserver registers a callback invoked with every guest message,
// after it has been logged. The callback must not block.
func WithLogObserver(fn func(entities.GuestLogMessage)) GuestLoggerOption {
	return func(g *GuestLogger) {
		g.observe = fn
	}
}

// NewGuestLogger creates a GuestLogger writing to logger.
func NewGuestLogger(logger *slog.Logger, opts ...GuestLoggerOption) *GuestLogger {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GuestLogger{
		logger: logger,
		maxLen: DefaultMaxLogBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Function returns the env.log host function for the given arity: 0 selects
// the trigger form, 1 the offset form.
func (g *GuestLogger) Function(arity int) Function {
	h := g.Trigger
	if arity == 1 {
		h = g.FromOffset
	}
	return Function{Name: LogFunctionName, Arity: arity, Handler: h}
}

// Trigger handles env.log() by logging a fixed marker.
func (g *GuestLogger) Trigger(ctx context.Context, _ GuestMemory, _ []uint64) {
	g.emit(ctx, entities.GuestLogMessage{Text: TriggerMarker}, nil)
}

// FromOffset handles env.log(offset) by reading a bounded string from guest memory.
func (g *GuestLogger) FromOffset(ctx context.Context, mem GuestMemory, args []uint64) {
	var offset uint32
	if len(args) > 0 {
		offset = uint32(args[0]) //nolint:gosec // G115: i32 argument occupies the low 32 bits
	}
	msg, err := ReadGuestString(mem, offset, g.maxLen)
	g.emit(ctx, msg, err)
}

func (g *GuestLogger) emit(ctx context.Context, msg entities.GuestLogMessage, readErr error) {
	attrs := []slog.Attr{
		slog.String("source", "guest"),
		slog.String("text", msg.Text),
	}
	if info, ok := CallInfoFromContext(ctx); ok {
		attrs = append(attrs,
			slog.String("device_id", info.DeviceID),
			slog.Uint64("seq", info.Sequence),
		)
	}

	level := slog.LevelInfo
	if readErr != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.Uint64("offset", uint64(msg.Offset)),
			slog.String("error", readErr.Error()),
		)
	} else if msg.Truncated {
		attrs = append(attrs, slog.Bool("truncated", true))
	}

	g.logger.LogAttrs(ctx, level, "guest log", attrs...)

	if g.observe != nil {
		g.observe(msg)
	}
}
