// Package abi converts host numbers to and from the value types a guest
// declares for filter_value.
package abi

import (
	"math"
	"strings"

	"github.com/tetratelabs/wazero/api"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

// Version names the guest contract: filter_value takes one numeric argument and
// returns one numeric result; env.log is either () -> () or (i32) -> ().
const Version = "fogbridge/v1"

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// IsNumeric reports whether t is one of the four core number types.
func IsNumeric(t api.ValueType) bool {
	switch t {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		return true
	}
	return false
}

// EncodeParam converts v into the stack encoding of t. Integer types accept only
// integral values in range; f32 accepts any finite value within its range.
func EncodeParam(t api.ValueType, v float64) (uint64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &sdkErrors.InvalidArgumentError{Value: v, Type: api.ValueTypeName(t)}
	}

	switch t {
	case api.ValueTypeF64:
		return api.EncodeF64(v), nil
	case api.ValueTypeF32:
		if math.Abs(v) > math.MaxFloat32 {
			return 0, &sdkErrors.InvalidArgumentError{Value: v, Type: "f32"}
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeI32:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, &sdkErrors.InvalidArgumentError{Value: v, Type: "i32"}
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		if v != math.Trunc(v) || v < -maxExactInt || v > maxExactInt {
			return 0, &sdkErrors.InvalidArgumentError{Value: v, Type: "i64"}
		}
		return api.EncodeI64(int64(v)), nil
	}
	return 0, &sdkErrors.InvalidArgumentError{Value: v, Type: api.ValueTypeName(t)}
}

// DecodeResult converts a stack value of type t back into a float64.
func DecodeResult(t api.ValueType, raw uint64) float64 {
	switch t {
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeI32:
		return float64(api.DecodeI32(raw))
	case api.ValueTypeI64:
		return float64(int64(raw))
	}
	return math.NaN()
}

// Signature renders a function shape like "(f64) -> (f64)" for error messages.
func Signature(params, results []api.ValueType) string {
	return "(" + typeList(params) + ") -> (" + typeList(results) + ")"
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
