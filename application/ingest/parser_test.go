package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogbridge/fogbridge/domain/entities"
	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

func testParser() *Parser {
	return NewParser(Fields{
		Reading:       "umidade",
		Status:        "seco",
		Device:        "device_id",
		DefaultDevice: "RaspberryPi-Fog1",
	})
}

func TestParse_Reading(t *testing.T) {
	in := testParser().Parse("ic/esp32/node1", []byte(`  {"umidade": 1310, "seco": "wet"}  `))

	parsed, ok := in.(entities.ParsedReading)
	require.True(t, ok, "got %#v", in)
	r := parsed.Reading
	assert.Equal(t, 1310.0, r.RawValue)
	assert.Equal(t, "RaspberryPi-Fog1", r.DeviceID)
	assert.Equal(t, "ic/esp32/node1", r.Topic)
	assert.JSONEq(t, `"wet"`, string(r.Status))
	assert.Contains(t, string(r.SourcePayload), `"umidade"`)
}

func TestParse_DeviceFromPayload(t *testing.T) {
	in := testParser().Parse("t", []byte(`{"umidade": 40.5, "device_id": "esp32-a"}`))

	parsed := in.(entities.ParsedReading)
	assert.Equal(t, "esp32-a", parsed.Reading.DeviceID)
	assert.Equal(t, 40.5, parsed.Reading.RawValue)
	assert.False(t, parsed.Reading.HasStatus())
}

func TestParse_NonStringDeviceFallsBack(t *testing.T) {
	for _, payload := range []string{
		`{"umidade": 1, "device_id": 7}`,
		`{"umidade": 1, "device_id": ""}`,
		`{"umidade": 1, "device_id": null}`,
	} {
		parsed := testParser().Parse("t", []byte(payload)).(entities.ParsedReading)
		assert.Equal(t, "RaspberryPi-Fog1", parsed.Reading.DeviceID, payload)
	}
}

func TestParse_StatusCopiedVerbatim(t *testing.T) {
	for _, status := range []string{`true`, `0`, `null`, `{"level":3}`, `"N/A"`} {
		parsed := testParser().Parse("t", []byte(`{"umidade": 1, "seco": `+status+`}`)).(entities.ParsedReading)
		assert.Equal(t, status, string(parsed.Reading.Status))
	}
}

func TestParse_Passthrough(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
		parsed  bool
	}{
		{"plain text", "hello", ReasonNotObject, false},
		{"startup banner", "ESP32 iniciado!", ReasonNotObject, false},
		{"empty", "   ", ReasonNotObject, false},
		{"json array", "[1,2]", ReasonNotObject, false},
		{"bare number", "42", ReasonNotObject, false},
		{"truncated object", `{"umidade": 4`, ReasonMalformed, true},
		{"trailing garbage", `{"umidade": 4} x`, ReasonMalformed, true},
		{"missing reading", `{"seco": true}`, ReasonMissingReading, true},
		{"wrong field name", `{"reading": 42}`, ReasonMissingReading, true},
		{"null reading", `{"umidade": null}`, ReasonNotNumeric, true},
		{"string reading", `{"umidade": "42"}`, ReasonNotNumeric, true},
		{"bool reading", `{"umidade": true}`, ReasonNotNumeric, true},
		{"object reading", `{"umidade": {"v": 1}}`, ReasonNotNumeric, true},
		{"overflowing reading", `{"umidade": 1e400}`, ReasonNotFinite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testParser().Parse("ic/esp32/node1", []byte(tt.payload))

			pt, ok := in.(entities.PassthroughText)
			require.True(t, ok, "got %#v", in)
			assert.Equal(t, tt.reason, pt.Reason)
			assert.Equal(t, "ic/esp32/node1", pt.Topic)

			var parseErr *sdkErrors.MessageParseError
			assert.Equal(t, tt.parsed, errors.As(pt.Err, &parseErr))
		})
	}
}

func TestParse_PassthroughKeepsText(t *testing.T) {
	pt := testParser().Parse("t", []byte(" hello \n")).(entities.PassthroughText)
	assert.Equal(t, "hello", pt.Text)

	pt = testParser().Parse("t", []byte("bad\xffbyte")).(entities.PassthroughText)
	assert.Equal(t, "bad�byte", pt.Text)
}

func TestParse_ConfiguredReadingField(t *testing.T) {
	p := NewParser(Fields{Reading: "reading", DefaultDevice: "fog"})

	parsed, ok := p.Parse("t", []byte(`{"reading": 42}`)).(entities.ParsedReading)
	require.True(t, ok)
	assert.Equal(t, 42.0, parsed.Reading.RawValue)
	assert.Equal(t, "fog", parsed.Reading.DeviceID)
	assert.Nil(t, parsed.Reading.Status)
}

func TestParse_DoesNotAliasPayload(t *testing.T) {
	payload := []byte(`{"umidade": 1, "seco": "x"}`)
	parsed := testParser().Parse("t", payload).(entities.ParsedReading)

	payload[2] = 'X'
	assert.Equal(t, byte('u'), parsed.Reading.SourcePayload[2])
}
