// Package pipeline drives one inbound message through parse, filter, and
// publish, deciding per stage whether to continue.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fogbridge/fogbridge/application/ingest"
	"github.com/fogbridge/fogbridge/application/publish"
	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
)

// Stage is a state in the life of one message.
type Stage string

const (
	StageReceived    Stage = "received"
	StageParsed      Stage = "parsed"
	StagePassthrough Stage = "passthrough"
	StageFiltered    Stage = "filtered"
	StagePublished   Stage = "published"
	StagePersisted   Stage = "persisted"
	StageDropped     Stage = "dropped"
)

// Terminal reports whether no further transition follows s.
func (s Stage) Terminal() bool {
	switch s {
	case StagePassthrough, StagePublished, StagePersisted, StageDropped:
		return true
	}
	return false
}

// Outcome is the result of dispatching one message.
type Outcome struct {
	// Stage is the last stage reached.
	Stage Stage
	// FailedAt names the stage whose failure ended or degraded processing.
	FailedAt Stage
	// Err holds the failure, if any. Publish and persist failures leave the
	// reading processed; a filter failure drops it.
	Err error

	Reading *entities.TelemetryReading
	Record  *entities.ProcessedRecord
	// Passthrough is set when the message was not telemetry.
	Passthrough *entities.PassthroughText
}

// Dispatcher wires a Parser, a Filter, and a Publisher. Handle may be called
// from several goroutines; the Filter serializes guest calls.
type Dispatcher struct {
	parser    *ingest.Parser
	filter    ports.Filter
	publisher *publish.Publisher
	stores    bool
	metrics   ports.Metrics
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPersistence marks that the publisher has durable stores, so a fully
// successful reading ends in StagePersisted rather than StagePublished.
func WithPersistence(enabled bool) Option {
	return func(d *Dispatcher) {
		d.stores = enabled
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(parser *ingest.Parser, filter ports.Filter, publisher *publish.Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		parser:    parser,
		filter:    filter,
		publisher: publisher,
		metrics:   ports.NopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle dispatches msg and discards the outcome. It matches ingest.Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg ports.Message) {
	d.Dispatch(ctx, msg)
}

// Dispatch runs msg through every stage and reports where it ended.
// It never panics on payload content and never returns a fatal error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg ports.Message) Outcome {
	logger := d.logger.With("topic", msg.Topic)

	var reading entities.TelemetryReading
	switch in := d.parser.Parse(msg.Topic, msg.Payload).(type) {
	case entities.PassthroughText:
		d.metrics.Passthrough()
		attrs := []any{"stage", StagePassthrough, "reason", in.Reason, "text", in.Text}
		logger.InfoContext(ctx, "passthrough message", attrs...)
		return Outcome{Stage: StagePassthrough, Passthrough: &in}
	case entities.ParsedReading:
		reading = in.Reading
	}

	logger = logger.With("device_id", reading.DeviceID)
	logger.DebugContext(ctx, "reading parsed", "stage", StageParsed, "raw", reading.RawValue)

	start := time.Now()
	filtered, err := d.filter.InvokeReading(ctx, reading)
	d.metrics.ObserveFilter(time.Since(start))
	if err != nil {
		d.metrics.Dropped(string(StageFiltered))
		logger.WarnContext(ctx, "reading dropped", "stage", StageDropped, "failed_at", StageFiltered,
			"error", sdkErrors.ToErrorDetail(err))
		return Outcome{Stage: StageDropped, FailedAt: StageFiltered, Err: err, Reading: &reading}
	}
	logger.DebugContext(ctx, "reading filtered", "stage", StageFiltered, "filtered", filtered)

	res := d.publisher.Publish(ctx, reading, filtered)
	d.metrics.ReadingProcessed()

	out := Outcome{Stage: StageFiltered, Reading: &reading, Record: &res.Record}
	if res.Published() {
		out.Stage = StagePublished
	} else {
		out.FailedAt = StagePublished
	}
	if d.stores {
		if res.Persisted() && res.Published() {
			out.Stage = StagePersisted
		} else if !res.Persisted() && out.FailedAt == "" {
			out.FailedAt = StagePersisted
		}
	}
	out.Err = errors.Join(res.PublishErr, res.PersistErr)
	return out
}
