package ports

import "time"

// Metrics records pipeline counters. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	MessageReceived()
	ReadingProcessed()
	Passthrough()
	Dropped(stage string)
	GuestLog()
	PublishError()
	PersistError()
	ObserveFilter(d time.Duration)
	SetQueueDepth(n int)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) MessageReceived()            {}
func (NopMetrics) ReadingProcessed()           {}
func (NopMetrics) Passthrough()                {}
func (NopMetrics) Dropped(string)              {}
func (NopMetrics) GuestLog()                   {}
func (NopMetrics) PublishError()               {}
func (NopMetrics) PersistError()               {}
func (NopMetrics) ObserveFilter(time.Duration) {}
func (NopMetrics) SetQueueDepth(int)           {}
