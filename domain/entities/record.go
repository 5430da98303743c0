package entities

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ProcessedRecord is the outcome of filtering one TelemetryReading.
// Filtered holds the exact guest result; rounding is applied only by Encode.
type ProcessedRecord struct {
	Timestamp time.Time
	DeviceID  string
	Status    json.RawMessage
	Raw       float64
	Filtered  float64
}

// OutboundRecord is the wire form of a ProcessedRecord, as published and persisted.
type OutboundRecord struct {
	DeviceID  string          `json:"device_id" jsonschema:"required,description=Sensor identity"`
	Timestamp int64           `json:"timestamp" jsonschema:"required,description=Host publish time in unix seconds"`
	Raw       float64         `json:"raw" jsonschema:"required,description=Reading as received"`
	Filtered  float64         `json:"filtered" jsonschema:"required,description=Smoothed reading rounded to the configured precision"`
	Status    json.RawMessage `json:"status" jsonschema:"description=Status indicator passed through unmodified"`
}

// Encode builds the wire form, rounding Filtered to precision decimal places.
func (r ProcessedRecord) Encode(precision int) OutboundRecord {
	status := r.Status
	if len(status) == 0 {
		status = json.RawMessage("null")
	}
	return OutboundRecord{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp.Unix(),
		Raw:       r.Raw,
		Filtered:  RoundTo(r.Filtered, precision),
		Status:    status,
	}
}

// CSVHeader is the column set of a persisted record.
var CSVHeader = []string{"device_id", "timestamp", "raw", "filtered", "status"}

// CSVRow renders the record as one delimited row matching CSVHeader.
func (o OutboundRecord) CSVRow(precision int) []string {
	return []string{
		o.DeviceID,
		time.Unix(o.Timestamp, 0).UTC().Format(time.RFC3339),
		strconv.FormatFloat(o.Raw, 'f', -1, 64),
		strconv.FormatFloat(o.Filtered, 'f', precision, 64),
		o.StatusText(),
	}
}

// StatusText returns the status as plain text: JSON strings are unquoted,
// null or absent becomes empty, anything else is the raw JSON.
func (o OutboundRecord) StatusText() string {
	if len(o.Status) == 0 || string(o.Status) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(o.Status, &s); err == nil {
		return s
	}
	return string(o.Status)
}

// RoundTo rounds v half away from zero to the given number of decimal places.
func RoundTo(v float64, precision int) float64 {
	if precision < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}
