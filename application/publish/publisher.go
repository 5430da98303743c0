// Package publish builds outbound records and sends them to the output topic
// and the configured record stores.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
)

// Defaults for the outbound side.
const (
	DefaultTopic     = "ic/fog/processed"
	DefaultPrecision = 2
)

// Result reports what happened to one record. Publish and persist failures
// never undo each other; the reading counts as processed either way.
type Result struct {
	Record     entities.ProcessedRecord
	Outbound   entities.OutboundRecord
	PublishErr error
	PersistErr error
}

// Published reports whether the record reached the transport.
func (r Result) Published() bool { return r.PublishErr == nil }

// Persisted reports whether every store accepted the record.
func (r Result) Persisted() bool { return r.PersistErr == nil }

// Publisher is the Result Publisher. It is safe for concurrent use when its
// transport and stores are.
type Publisher struct {
	transport ports.Publisher
	stores    []ports.RecordStore
	topic     string
	qos       byte
	retain    bool
	precision int
	now       func() time.Time
	metrics   ports.Metrics
	logger    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic sets the output topic and QoS.
func WithTopic(topic string, qos byte) Option {
	return func(p *Publisher) {
		p.topic = topic
		p.qos = qos
	}
}

// WithRetain sets the retained flag on published records.
func WithRetain(retain bool) Option {
	return func(p *Publisher) {
		p.retain = retain
	}
}

// WithPrecision sets how many decimals the filtered value keeps on the wire.
func WithPrecision(n int) Option {
	return func(p *Publisher) {
		p.precision = n
	}
}

// WithStores appends durable stores. Each record is appended to every store.
func WithStores(stores ...ports.RecordStore) Option {
	return func(p *Publisher) {
		p.stores = append(p.stores, stores...)
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) Option {
	return func(p *Publisher) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Publisher writing to transport.
func New(transport ports.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		transport: transport,
		topic:     DefaultTopic,
		precision: DefaultPrecision,
		now:       time.Now,
		metrics:   ports.NopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish builds the record for reading with a host timestamp, sends it, and
// appends it to every store. Failures are logged and returned in Result.
func (p *Publisher) Publish(ctx context.Context, reading entities.TelemetryReading, filtered float64) Result {
	rec := entities.ProcessedRecord{
		Timestamp: p.now(),
		DeviceID:  reading.DeviceID,
		Status:    reading.Status,
		Raw:       reading.RawValue,
		Filtered:  filtered,
	}
	out := rec.Encode(p.precision)
	res := Result{Record: rec, Outbound: out}

	logAttrs := []any{"device_id", rec.DeviceID, "topic", p.topic}

	payload, err := json.Marshal(out)
	if err != nil {
		res.PublishErr = &sdkErrors.PublishError{Topic: p.topic, Err: err}
	} else if p.transport != nil {
		if err := p.transport.Publish(ctx, ports.Message{
			Topic:    p.topic,
			Payload:  payload,
			QoS:      p.qos,
			Retained: p.retain,
		}); err != nil {
			var pubErr *sdkErrors.PublishError
			if !errors.As(err, &pubErr) {
				err = &sdkErrors.PublishError{Topic: p.topic, Err: err}
			}
			res.PublishErr = err
		}
	}
	if res.PublishErr != nil {
		p.metrics.PublishError()
		p.logger.WarnContext(ctx, "publish failed", append(logAttrs, "stage", "publish", "error", res.PublishErr)...)
	}

	var persistErrs []error
	for _, s := range p.stores {
		if err := s.Append(ctx, out); err != nil {
			var perr *sdkErrors.PersistError
			if !errors.As(err, &perr) {
				err = &sdkErrors.PersistError{Store: s.Name(), Err: err}
			}
			persistErrs = append(persistErrs, err)
			p.metrics.PersistError()
			p.logger.WarnContext(ctx, "persist failed", append(logAttrs, "stage", "persist", "store", s.Name(), "error", err)...)
		}
	}
	res.PersistErr = errors.Join(persistErrs...)

	p.logger.InfoContext(ctx, "reading processed", append(logAttrs,
		"raw", out.Raw,
		"filtered", out.Filtered,
		"published", res.Published(),
	)...)
	return res
}

// Close closes every store and returns their errors joined.
func (p *Publisher) Close() error {
	var errs []error
	for _, s := range p.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, &sdkErrors.PersistError{Store: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
