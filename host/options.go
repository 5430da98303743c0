package host

import (
	"log/slog"
	"time"

	"github.com/fogbridge/fogbridge/hostfuncs"
)

// Option defines a functional option for configuring the Host.
type Option func(*hostConfig)

type hostConfig struct {
	logger           *slog.Logger
	guestLogger      *hostfuncs.GuestLogger
	middleware       []hostfuncs.Middleware
	loadTimeout      time.Duration
	memoryLimitPages uint32
	allowWASI        bool
	reinstantiate    bool
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		loadTimeout:   10 * time.Second,
		reinstantiate: true,
	}
}

// WithLogger sets the logger for host lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *hostConfig) {
		c.logger = logger
	}
}

// WithGuestLogger sets the bridge serving env.log. Defaults to a GuestLogger
// writing to the host logger.
func WithGuestLogger(g *hostfuncs.GuestLogger) Option {
	return func(c *hostConfig) {
		c.guestLogger = g
	}
}

// WithMiddleware wraps every host function the guest may call.
func WithMiddleware(mw ...hostfuncs.Middleware) Option {
	return func(c *hostConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithLoadTimeout bounds instantiation and _initialize.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *hostConfig) {
		c.loadTimeout = d
	}
}

// WithMemoryLimitPages caps guest linear memory in 64KiB pages. Zero keeps the
// runtime default.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *hostConfig) {
		c.memoryLimitPages = pages
	}
}

// WithWASI allows the module to import wasi_snapshot_preview1, for guests
// built with a WASI toolchain. Disabled by default.
func WithWASI(enabled bool) Option {
	return func(c *hostConfig) {
		c.allowWASI = enabled
	}
}

// WithReinstantiate controls whether an instance closed by a trap is replaced
// with a fresh one from the compiled module. Enabled by default.
func WithReinstantiate(enabled bool) Option {
	return func(c *hostConfig) {
		c.reinstantiate = enabled
	}
}
