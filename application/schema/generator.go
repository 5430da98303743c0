// Package schema generates JSON Schemas for the outbound record and the
// configuration file.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/fogbridge/fogbridge/application/config"
	"github.com/fogbridge/fogbridge/domain/entities"
)

var (
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	durationType   = reflect.TypeOf(time.Duration(0))
)

// Option adjusts the reflector.
type Option func(*jsonschema.Reflector)

// WithFieldNameTag names properties after the given struct tag instead of json.
func WithFieldNameTag(tag string) Option {
	return func(r *jsonschema.Reflector) {
		r.FieldNameTag = tag
	}
}

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go value.
// Raw JSON fields accept any value and durations are strings such as "250ms".
func GenerateSchema(v any, opts ...Option) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Mapper:         mapType,
	}
	for _, opt := range opts {
		opt(&reflector)
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// RecordSchema is the schema of the record published on the output topic.
func RecordSchema() ([]byte, error) {
	return GenerateSchema(&entities.OutboundRecord{})
}

// ConfigSchema is the schema of the YAML configuration file.
func ConfigSchema() ([]byte, error) {
	return GenerateSchema(&config.Config{}, WithFieldNameTag("yaml"))
}

func mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case rawMessageType:
		return &jsonschema.Schema{Description: "Any JSON value"}
	case durationType:
		return &jsonschema.Schema{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`}
	}
	return nil
}
