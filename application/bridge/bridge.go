// Package bridge owns every long-lived resource of a running fog bridge and
// brings them up and down in order.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fogbridge/fogbridge/application/config"
	"github.com/fogbridge/fogbridge/application/ingest"
	"github.com/fogbridge/fogbridge/application/pipeline"
	"github.com/fogbridge/fogbridge/application/publish"
	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
	"github.com/fogbridge/fogbridge/host"
	"github.com/fogbridge/fogbridge/hostfuncs"
	"github.com/fogbridge/fogbridge/infrastructure/mqtt"
	"github.com/fogbridge/fogbridge/infrastructure/observability"
	"github.com/fogbridge/fogbridge/infrastructure/store"
	"github.com/fogbridge/fogbridge/log"
)

// ErrAlreadyStarted is returned by a second Init.
var ErrAlreadyStarted = errors.New("bridge already initialized")

// Option configures a BridgeContext.
type Option func(*BridgeContext)

// WithLogger overrides the logger built from configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(b *BridgeContext) {
		b.logger = logger
	}
}

// WithMetrics overrides the Prometheus metrics built by Init. The metrics
// server is only started for metrics Init builds itself.
func WithMetrics(m ports.Metrics) Option {
	return func(b *BridgeContext) {
		b.metrics = m
	}
}

// WithTransport overrides the MQTT client built from configuration.
func WithTransport(t ports.Transport) Option {
	return func(b *BridgeContext) {
		b.transport = t
	}
}

// WithModuleBytes supplies the sandbox module instead of reading
// sandbox.module_path.
func WithModuleBytes(wasm []byte) Option {
	return func(b *BridgeContext) {
		b.moduleBytes = wasm
	}
}

// WithStores adds record stores alongside the configured ones.
func WithStores(stores ...ports.RecordStore) Option {
	return func(b *BridgeContext) {
		b.stores = append(b.stores, stores...)
	}
}

// BridgeContext holds the runtime, sandbox, transport, and stores of one
// bridge. The process entry point owns it; nothing else is global.
type BridgeContext struct {
	cfg config.Config

	logger      *slog.Logger
	metrics     ports.Metrics
	prom        *observability.PromMetrics
	server      *observability.Server
	transport   ports.Transport
	moduleBytes []byte
	stores      []ports.RecordStore

	host       *host.Host
	invoker    *host.Invoker
	publisher  *publish.Publisher
	dispatcher *pipeline.Dispatcher
	listener   *ingest.Listener

	mu          sync.Mutex
	initialized bool
	shutdown    bool
}

// New creates a BridgeContext for cfg. Nothing is started until Init.
func New(cfg config.Config, opts ...Option) *BridgeContext {
	b := &BridgeContext{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init brings the bridge up: logger, metrics, sandbox, stores, broker
// connection, then the subscription. No message is processed before the
// sandbox is ready. On failure everything already started is released.
func (b *BridgeContext) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized || b.shutdown {
		return ErrAlreadyStarted
	}
	b.initialized = true

	if err := b.init(ctx); err != nil {
		b.logger.ErrorContext(ctx, "bridge init failed", "error", sdkErrors.ToErrorDetail(err))
		_ = b.shutdownLocked(context.WithoutCancel(ctx))
		return err
	}
	b.logger.InfoContext(ctx, "bridge running",
		"subscribe", b.cfg.Ingest.Topic,
		"publish", b.cfg.Publish.Topic,
		"stores", len(b.stores),
	)
	return nil
}

func (b *BridgeContext) init(ctx context.Context) error {
	if err := b.initLogger(); err != nil {
		return err
	}
	if err := b.initMetrics(); err != nil {
		return err
	}
	if err := b.initSandbox(ctx); err != nil {
		return err
	}
	if err := b.initStores(ctx); err != nil {
		return err
	}

	if b.transport == nil {
		b.transport = mqtt.New(mqtt.Config{
			Broker:               b.cfg.Broker.URL,
			ClientID:             b.cfg.Broker.ClientID,
			Username:             b.cfg.Broker.Username,
			Password:             b.cfg.Broker.Password,
			KeepAlive:            b.cfg.Broker.KeepAlive,
			ConnectTimeout:       b.cfg.Broker.ConnectTimeout,
			MaxReconnectInterval: b.cfg.Broker.MaxReconnectInterval,
		}, mqtt.WithLogger(b.logger.With("component", "mqtt")))
	}
	if err := b.transport.Connect(ctx); err != nil {
		var connErr *sdkErrors.BrokerConnectError
		if !errors.As(err, &connErr) {
			err = &sdkErrors.BrokerConnectError{Broker: b.cfg.Broker.URL, Err: err}
		}
		return err
	}
	b.publisher = publish.New(b.transport,
		publish.WithTopic(b.cfg.Publish.Topic, b.cfg.Publish.QoS),
		publish.WithRetain(b.cfg.Publish.Retain),
		publish.WithPrecision(b.cfg.Publish.Precision),
		publish.WithStores(b.stores...),
		publish.WithMetrics(b.metrics),
		publish.WithLogger(b.logger),
	)
	b.dispatcher = pipeline.NewDispatcher(b.parser(), b.invoker, b.publisher,
		pipeline.WithMetrics(b.metrics),
		pipeline.WithLogger(b.logger),
		pipeline.WithPersistence(len(b.stores) > 0),
	)
	b.listener = ingest.NewListener(b.transport, b.cfg.Ingest.Topic, b.dispatcher.Handle,
		ingest.WithQoS(b.cfg.Ingest.QoS),
		ingest.WithQueueSize(b.cfg.Ingest.QueueSize),
		ingest.WithWorkers(b.cfg.Ingest.Workers),
		ingest.WithMetrics(b.metrics),
		ingest.WithLogger(b.logger),
	)
	return b.listener.Start(ctx)
}

func (b *BridgeContext) initLogger() error {
	if b.logger != nil {
		return nil
	}
	level, err := log.ParseLevel(b.cfg.Log.Level)
	if err != nil {
		b.logger = log.New()
		return &sdkErrors.ConfigError{Field: "log.level", Err: err}
	}
	b.logger = log.New(log.WithLevel(level), log.WithFormat(b.cfg.Log.Format))
	return nil
}

func (b *BridgeContext) initMetrics() error {
	if b.metrics != nil {
		return nil
	}
	b.prom = observability.NewPromMetrics()
	b.metrics = b.prom
	if b.cfg.Metrics.Addr == "" {
		return nil
	}
	srv, err := observability.Start(b.cfg.Metrics.Addr, b.prom.Registry(), b.logger)
	if err != nil {
		return &sdkErrors.ConfigError{Field: "metrics.addr", Err: err}
	}
	b.server = srv
	return nil
}

func (b *BridgeContext) initSandbox(ctx context.Context) error {
	wasm := b.moduleBytes
	if wasm == nil {
		data, err := os.ReadFile(b.cfg.Sandbox.ModulePath)
		if err != nil {
			return &sdkErrors.ModuleLoadError{Phase: "read", Err: err}
		}
		wasm = data
	}

	guestLogger := hostfuncs.NewGuestLogger(b.logger,
		hostfuncs.WithMaxLogBytes(b.cfg.Sandbox.MaxLogBytes),
		hostfuncs.WithLogObserver(func(entities.GuestLogMessage) { b.metrics.GuestLog() }),
	)
	var middleware []hostfuncs.Middleware
	if b.logger.Enabled(ctx, slog.LevelDebug) {
		middleware = append(middleware, hostfuncs.LoggingMiddleware(b.logger))
	}
	h, err := host.New(ctx,
		host.WithLogger(b.logger),
		host.WithGuestLogger(guestLogger),
		host.WithMiddleware(middleware...),
		host.WithLoadTimeout(b.cfg.Sandbox.LoadTimeout),
		host.WithMemoryLimitPages(b.cfg.Sandbox.MemoryLimitPages),
		host.WithWASI(b.cfg.Sandbox.AllowWASI),
		host.WithReinstantiate(b.cfg.Sandbox.Reinstantiate()),
	)
	if err != nil {
		return err
	}
	b.host = h
	if _, err := h.Load(ctx, wasm); err != nil {
		return err
	}
	b.invoker = host.NewInvoker(h, host.WithInvokeTimeout(b.cfg.Sandbox.InvokeTimeout))
	return nil
}

func (b *BridgeContext) initStores(ctx context.Context) error {
	if path := b.cfg.Store.CSV.Path; path != "" {
		s, err := store.OpenCSV(path, b.cfg.Publish.Precision)
		if err != nil {
			return err
		}
		b.stores = append(b.stores, s)
	}
	if dsn := b.cfg.Store.Postgres.DSN; dsn != "" {
		s, err := store.OpenPostgres(ctx, dsn, b.cfg.Store.Postgres.Table)
		if err != nil {
			return err
		}
		b.stores = append(b.stores, s)
	}
	return nil
}

func (b *BridgeContext) parser() *ingest.Parser {
	return ingest.NewParser(ingest.Fields{
		Reading:       b.cfg.Ingest.ReadingField,
		Status:        b.cfg.Ingest.StatusField,
		Device:        b.cfg.Ingest.DeviceField,
		DefaultDevice: b.cfg.Ingest.DefaultDeviceID,
	})
}

// Shutdown stops the subscription and drains queued messages, then
// disconnects, closes the stores, and closes the sandbox. Later calls return
// nil.
func (b *BridgeContext) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil
	}
	return b.shutdownLocked(ctx)
}

func (b *BridgeContext) shutdownLocked(ctx context.Context) error {
	b.shutdown = true
	var errs []error

	if b.listener != nil {
		if err := b.listener.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop listener: %w", err))
		}
	}
	if b.transport != nil {
		if err := b.transport.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	} else {
		// Init failed after opening stores but before the publisher owned them.
		for _, s := range b.stores {
			if err := s.Close(); err != nil {
				errs = append(errs, &sdkErrors.PersistError{Store: s.Name(), Err: err})
			}
		}
	}
	if b.host != nil {
		if err := b.host.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sandbox: %w", err))
		}
	}
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if b.logger != nil {
		b.logger.InfoContext(ctx, "bridge stopped")
	}
	return errors.Join(errs...)
}

// Dispatcher returns the pipeline, or nil before Init.
func (b *BridgeContext) Dispatcher() *pipeline.Dispatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatcher
}

// Host returns the sandbox host, or nil before Init.
func (b *BridgeContext) Host() *host.Host {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host
}

// Metrics returns the metrics sink in use.
func (b *BridgeContext) Metrics() ports.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}
