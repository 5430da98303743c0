package abi

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

func TestEncodeParam_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		typ   api.ValueType
		value float64
	}{
		{"f64 fractional", api.ValueTypeF64, 47.6},
		{"f64 negative", api.ValueTypeF64, -12.25},
		{"f32 exact", api.ValueTypeF32, 42.5},
		{"i32 sensor count", api.ValueTypeI32, 3012},
		{"i32 negative", api.ValueTypeI32, -40},
		{"i64 large", api.ValueTypeI64, 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeParam(tt.typ, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, DecodeResult(tt.typ, raw))
		})
	}
}

func TestEncodeParam_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		typ   api.ValueType
		value float64
	}{
		{"NaN", api.ValueTypeF64, math.NaN()},
		{"infinity", api.ValueTypeF64, math.Inf(1)},
		{"f32 overflow", api.ValueTypeF32, math.MaxFloat64},
		{"i32 fractional", api.ValueTypeI32, 42.5},
		{"i32 overflow", api.ValueTypeI32, math.MaxInt32 + 1},
		{"i64 beyond exact range", api.ValueTypeI64, 1 << 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeParam(tt.typ, tt.value)
			require.Error(t, err)

			var argErr *sdkErrors.InvalidArgumentError
			assert.True(t, errors.As(err, &argErr))
		})
	}
}

func TestDecodeResult_F32Widening(t *testing.T) {
	raw := api.EncodeF32(47.6)
	assert.InDelta(t, 47.6, DecodeResult(api.ValueTypeF32, raw), 1e-5)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric(api.ValueTypeF64))
	assert.True(t, IsNumeric(api.ValueTypeI32))
	assert.False(t, IsNumeric(api.ValueTypeExternref))
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "(f64) -> (f64)", Signature([]api.ValueType{api.ValueTypeF64}, []api.ValueType{api.ValueTypeF64}))
	assert.Equal(t, "() -> ()", Signature(nil, nil))
	assert.Equal(t, "(i32, i64) -> ()", Signature([]api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, nil))
}
