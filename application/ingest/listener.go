package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fogbridge/fogbridge/domain/ports"
)

// Default queue settings.
const (
	DefaultQueueSize = 256
	DefaultWorkers   = 1
)

// ErrListenerStopped is returned by Start after Stop.
var ErrListenerStopped = errors.New("listener stopped")

// Handler processes one queued message. It runs on a listener worker.
type Handler func(ctx context.Context, msg ports.Message)

// Listener subscribes to the telemetry topic and hands each message to a
// Handler through a bounded queue. The transport callback only enqueues, so
// a slow filter call never blocks message delivery; a full queue drops the
// message.
type Listener struct {
	sub     ports.Subscriber
	handler Handler
	topic   string
	qos     byte
	workers int
	metrics ports.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	queue    chan ports.Message
	started  bool
	stopping bool
	stopped  bool
	wg       sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.queue = make(chan ports.Message, n)
		}
	}
}

// WithWorkers sets how many goroutines drain the queue.
func WithWorkers(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithQoS sets the subscription QoS.
func WithQoS(qos byte) ListenerOption {
	return func(l *Listener) {
		l.qos = qos
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) ListenerOption {
	return func(l *Listener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener creates a Listener for topic.
func NewListener(sub ports.Subscriber, topic string, handler Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		sub:     sub,
		handler: handler,
		topic:   topic,
		workers: DefaultWorkers,
		metrics: ports.NopMetrics{},
		logger:  slog.Default(),
		queue:   make(chan ports.Message, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the workers and subscribes. Messages are handled with a
// context detached from ctx's cancellation, so queued messages are still
// processed while Stop drains.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return ErrListenerStopped
	}
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go l.worker(workCtx)
	}
	l.mu.Unlock()

	if err := l.sub.Subscribe(ctx, l.topic, l.qos, func(msg ports.Message) { l.Enqueue(msg) }); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "listening", "topic", l.topic, "qos", l.qos,
		"queue_size", cap(l.queue), "workers", l.workers)
	return nil
}

// Enqueue offers msg to the queue without blocking. It is the transport
// callback and reports whether the message was accepted.
func (l *Listener) Enqueue(msg ports.Message) bool {
	l.metrics.MessageReceived()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		l.metrics.Dropped("queue")
		return false
	}

	select {
	case l.queue <- msg:
		l.metrics.SetQueueDepth(len(l.queue))
		return true
	default:
		l.metrics.Dropped("queue")
		l.logger.Warn("ingest queue full, message dropped", "topic", msg.Topic, "queue_size", cap(l.queue))
		return false
	}
}

func (l *Listener) worker(ctx context.Context) {
	defer l.wg.Done()
	for msg := range l.queue {
		l.metrics.SetQueueDepth(len(l.queue))
		l.handler(ctx, msg)
	}
}

// Stop unsubscribes, closes the queue, and waits for queued messages to be
// handled or ctx to end. Safe to call more than once.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return nil
	}
	l.stopping = true
	started := l.started
	l.mu.Unlock()

	var unsubErr error
	if started {
		if err := l.sub.Unsubscribe(ctx, l.topic); err != nil {
			unsubErr = err
			l.logger.WarnContext(ctx, "unsubscribe failed", "topic", l.topic, "error", err)
		}
	}

	l.mu.Lock()
	l.stopped = true
	close(l.queue)
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return unsubErr
	case <-ctx.Done():
		return errors.Join(unsubErr, ctx.Err())
	}
}
