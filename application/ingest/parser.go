// Package ingest turns inbound transport messages into typed readings and
// feeds them to the pipeline through a bounded queue.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

// Passthrough reasons.
const (
	ReasonNotObject      = "not a structured object"
	ReasonMalformed      = "malformed object"
	ReasonMissingReading = "missing reading field"
	ReasonNotNumeric     = "reading field is not a number"
	ReasonNotFinite      = "reading is not finite"
)

// Fields names the payload fields the parser looks for.
type Fields struct {
	// Reading is the required numeric field.
	Reading string
	// Status is the optional status field, copied through unmodified. Empty disables it.
	Status string
	// Device is the optional device identity field. Empty disables it.
	Device string
	// DefaultDevice is used when the payload carries no device identity.
	DefaultDevice string
}

// Parser classifies payloads. It is stateless and safe for concurrent use.
type Parser struct {
	fields Fields
}

// NewParser creates a Parser for the given field names.
func NewParser(fields Fields) *Parser {
	return &Parser{fields: fields}
}

// Parse returns a ParsedReading when payload is a JSON object whose reading
// field holds a finite number, and a PassthroughText otherwise. It never fails.
func (p *Parser) Parse(topic string, payload []byte) entities.Inbound {
	trimmed := bytes.TrimSpace(payload)
	text := strings.ToValidUTF8(string(trimmed), "\uFFFD")

	passthrough := func(reason string, cause error) entities.Inbound {
		return entities.PassthroughText{
			Topic:  topic,
			Text:   text,
			Reason: reason,
			Err:    &sdkErrors.MessageParseError{Topic: topic, Reason: reason, Err: cause},
		}
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return entities.PassthroughText{Topic: topic, Text: text, Reason: ReasonNotObject}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return passthrough(ReasonMalformed, err)
	}

	rawReading, ok := obj[p.fields.Reading]
	if !ok {
		return passthrough(ReasonMissingReading, nil)
	}
	value, err := decodeNumber(rawReading)
	if err != nil {
		return passthrough(ReasonNotNumeric, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return passthrough(ReasonNotFinite, nil)
	}

	reading := entities.TelemetryReading{
		DeviceID:      p.deviceID(obj),
		Topic:         topic,
		RawValue:      value,
		SourcePayload: append([]byte(nil), payload...),
	}
	if p.fields.Status != "" {
		if status, ok := obj[p.fields.Status]; ok {
			reading.Status = append(json.RawMessage(nil), status...)
		}
	}
	return entities.ParsedReading{Reading: reading}
}

func (p *Parser) deviceID(obj map[string]json.RawMessage) string {
	if p.fields.Device == "" {
		return p.fields.DefaultDevice
	}
	raw, ok := obj[p.fields.Device]
	if !ok {
		return p.fields.DefaultDevice
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || strings.TrimSpace(id) == "" {
		return p.fields.DefaultDevice
	}
	return id
}

// decodeNumber accepts only a JSON number. Strings, booleans, null, arrays,
// and objects are rejected even when they look numeric.
func decodeNumber(raw json.RawMessage) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("got %s", jsonKind(v))
	}
	f, err := n.Float64()
	if err != nil {
		// Overflowing literals decode to ±Inf with a range error.
		if math.IsInf(f, 0) {
			return f, nil
		}
		return 0, err
	}
	return f, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
