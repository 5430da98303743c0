package entities

import "encoding/json"

// TelemetryReading is one validated sensor reading parsed from an inbound message.
// It is immutable once constructed.
type TelemetryReading struct {
	// DeviceID identifies the sensor. Taken from the payload when present,
	// otherwise from the configured default.
	DeviceID string

	// Topic is the topic the message arrived on.
	Topic string

	// RawValue is the required numeric reading.
	RawValue float64

	// Status is the optional status indicator, kept as the raw JSON value.
	// Nil when the payload carried no status field.
	Status json.RawMessage

	// SourcePayload is the inbound payload as received.
	SourcePayload []byte
}

// HasStatus reports whether the reading carried a status field.
func (r TelemetryReading) HasStatus() bool {
	return len(r.Status) > 0
}

// Inbound is the result of parsing one inbound message: either a ParsedReading
// or a PassthroughText. No other implementations exist.
type Inbound interface {
	inbound()
}

// ParsedReading is an inbound message that decoded into a TelemetryReading.
type ParsedReading struct {
	Reading TelemetryReading
}

// PassthroughText is an inbound message that is not telemetry. It is logged and
// never reaches the filter.
type PassthroughText struct {
	Topic  string
	Text   string
	Reason string

	// Err is the parse failure behind Reason, if any.
	Err error
}

func (ParsedReading) inbound()   {}
func (PassthroughText) inbound() {}
