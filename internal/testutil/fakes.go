// Package testutil provides in-memory implementations of the bridge ports
// for tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fogbridge/fogbridge/domain/entities"
	"github.com/fogbridge/fogbridge/domain/ports"
)

// Transport is an in-memory ports.Transport. Deliver routes a message to
// every matching subscription synchronously.
type Transport struct {
	mu         sync.Mutex
	subs       map[string]ports.MessageHandler
	published  []ports.Message
	connected  bool
	closed     bool
	ConnectErr error
	PublishErr error
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport creates an empty Transport.
func NewTransport() *Transport {
	return &Transport{subs: make(map[string]ports.MessageHandler)}
}

func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Subscribe(_ context.Context, topic string, _ byte, h ports.MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return errors.New("not connected")
	}
	t.subs[topic] = h
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, topic)
	return nil
}

func (t *Transport) Publish(_ context.Context, msg ports.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PublishErr != nil {
		return t.PublishErr
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	t.published = append(t.published, msg)
	return nil
}

func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

// Deliver hands payload to every subscription whose filter matches topic and
// reports how many matched.
func (t *Transport) Deliver(topic string, payload string) int {
	t.mu.Lock()
	var handlers []ports.MessageHandler
	for filter, h := range t.subs {
		if TopicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(ports.Message{Topic: topic, Payload: []byte(payload)})
	}
	return len(handlers)
}

// Published returns a copy of every published message.
func (t *Transport) Published() []ports.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.Message(nil), t.published...)
}

// Subscriptions returns the active topic filters.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for f := range t.subs {
		out = append(out, f)
	}
	return out
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// TopicMatches implements MQTT topic filter matching for + and #.
func TopicMatches(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	for i, f := range fparts {
		if f == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if f != "+" && f != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}

// Store is an in-memory ports.RecordStore.
type Store struct {
	mu        sync.Mutex
	StoreName string
	Records   []entities.OutboundRecord
	Err       error
	Closed    bool
}

var _ ports.RecordStore = (*Store)(nil)

func (s *Store) Name() string {
	if s.StoreName == "" {
		return "memory"
	}
	return s.StoreName
}

func (s *Store) Append(_ context.Context, rec entities.OutboundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Records = append(s.Records, rec)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Snapshot returns a copy of the stored records.
func (s *Store) Snapshot() []entities.OutboundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.OutboundRecord(nil), s.Records...)
}

// Metrics counts calls to each ports.Metrics method.
type Metrics struct {
	mu           sync.Mutex
	Received     int
	Processed    int
	Passthroughs int
	DroppedBy    map[string]int
	GuestLogs    int
	PublishErrs  int
	PersistErrs  int
	Filtered     int
	QueueDepth   int
}

var _ ports.Metrics = (*Metrics)(nil)

// NewMetrics creates a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{DroppedBy: make(map[string]int)}
}

func (m *Metrics) MessageReceived()  { m.do(func() { m.Received++ }) }
func (m *Metrics) ReadingProcessed() { m.do(func() { m.Processed++ }) }
func (m *Metrics) Passthrough()      { m.do(func() { m.Passthroughs++ }) }
func (m *Metrics) GuestLog()         { m.do(func() { m.GuestLogs++ }) }
func (m *Metrics) PublishError()     { m.do(func() { m.PublishErrs++ }) }
func (m *Metrics) PersistError()     { m.do(func() { m.PersistErrs++ }) }
func (m *Metrics) Dropped(stage string) {
	m.do(func() { m.DroppedBy[stage]++ })
}
func (m *Metrics) ObserveFilter(time.Duration) { m.do(func() { m.Filtered++ }) }
func (m *Metrics) SetQueueDepth(n int)         { m.do(func() { m.QueueDepth = n }) }

// DroppedAt returns the drop count for stage.
func (m *Metrics) DroppedAt(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DroppedBy[stage]
}

// Snapshot returns a copy safe to read while the pipeline runs.
func (m *Metrics) Snapshot() *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Metrics{
		Received:     m.Received,
		Processed:    m.Processed,
		Passthroughs: m.Passthroughs,
		DroppedBy:    make(map[string]int, len(m.DroppedBy)),
		GuestLogs:    m.GuestLogs,
		PublishErrs:  m.PublishErrs,
		PersistErrs:  m.PersistErrs,
		Filtered:     m.Filtered,
		QueueDepth:   m.QueueDepth,
	}
	for k, v := range m.DroppedBy {
		c.DroppedBy[k] = v
	}
	return c
}

func (m *Metrics) do(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// FilterFunc adapts a function to ports.Filter.
type FilterFunc func(ctx context.Context, reading entities.TelemetryReading) (float64, error)

func (f FilterFunc) InvokeReading(ctx context.Context, reading entities.TelemetryReading) (float64, error) {
	return f(ctx, reading)
}
