// Package wasmtest assembles small guest modules that implement the filter
// contract, so sandbox tests run without a WebAssembly toolchain.
//
// The generated filter_value keeps its previous output in a mutable f64
// global and computes y = alpha*x + (1-alpha)*y.
package wasmtest

import (
	"encoding/binary"
	"math"
)

// ValType is a WebAssembly value type byte.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// LogShape selects how the guest imports env.log.
type LogShape int

const (
	LogNone    LogShape = iota // no env.log import
	LogTrigger                 // env.log: () -> ()
	LogOffset                  // env.log: (i32) -> ()
	LogWide                    // env.log: (i64) -> (), not provided by the host
)

// MemorySize is the size of the single memory page generated guests export.
const MemorySize = 65536

// TextOffset is where Guest.LogText is placed in guest memory.
const TextOffset = 16

// Guest describes a module to assemble.
type Guest struct {
	// Alpha is the smoothing coefficient.
	Alpha float64
	// Initial seeds the filter state global.
	Initial float64

	// Param and Result are the filter_value value types. Zero means F64.
	Param  ValType
	Result ValType
	// ExtraParam adds a second f64 parameter to filter_value.
	ExtraParam bool

	// Log selects the env.log import; the filter calls it once per invocation
	// (except for LogWide).
	Log LogShape
	// LogAt is the offset passed to env.log in the LogOffset shape.
	LogAt int32
	// LogText is a NUL-terminated string placed at TextOffset.
	LogText string

	// Memory exports one page of linear memory named "memory".
	Memory bool

	// ExportName overrides "filter_value"; OmitExport drops the export entirely.
	ExportName string
	OmitExport bool

	// TrapBelowZero makes the filter execute unreachable for negative input.
	TrapBelowZero bool
	// SpinAbove makes the filter loop forever for input above it. Zero disables.
	SpinAbove float64
	// SpinningStart exports a _start function that never returns.
	SpinningStart bool

	// ExtraImport adds an import env.<name>: () -> ().
	ExtraImport string
	// ForeignImport adds an import <module>.<name>: () -> () from another module,
	// given as [2]string{module, name}.
	ForeignImport [2]string
}

// FilterGuest returns the reference guest: f64 filter with the given alpha,
// offset-form logging of a startup string, and one exported memory page.
func FilterGuest(alpha float64) Guest {
	return Guest{
		Alpha:   alpha,
		Log:     LogOffset,
		LogAt:   TextOffset,
		LogText: "filter ready",
		Memory:  true,
	}
}

// Malformed returns bytes that no runtime will accept as a module.
func Malformed() []byte {
	return []byte("\x00asm\x01\x00\x00\x00\xff\xff")
}

// Build assembles the module binary.
func (g Guest) Build() []byte {
	param := orF64(g.Param)
	result := orF64(g.Result)

	var types [][]byte
	addType := func(params, results []ValType) uint32 {
		types = append(types, funcType(params, results))
		return uint32(len(types) - 1)
	}

	filterParams := []ValType{param}
	if g.ExtraParam {
		filterParams = append(filterParams, F64)
	}
	filterType := addType(filterParams, []ValType{result})
	voidType := addType(nil, nil)

	var imports [][]byte
	logIdx := uint32(0)
	switch g.Log {
	case LogTrigger:
		logIdx = uint32(len(imports))
		imports = append(imports, funcImport("env", "log", voidType))
	case LogOffset:
		t := addType([]ValType{I32}, nil)
		logIdx = uint32(len(imports))
		imports = append(imports, funcImport("env", "log", t))
	case LogWide:
		t := addType([]ValType{I64}, nil)
		imports = append(imports, funcImport("env", "log", t))
	}
	if g.ExtraImport != "" {
		imports = append(imports, funcImport("env", g.ExtraImport, voidType))
	}
	if g.ForeignImport[0] != "" {
		imports = append(imports, funcImport(g.ForeignImport[0], g.ForeignImport[1], voidType))
	}

	filterIdx := uint32(len(imports))
	funcs := [][]byte{u32(filterType)}
	bodies := [][]byte{g.filterBody(logIdx, uint32(len(filterParams)), param, result)}
	startIdx := filterIdx + 1
	if g.SpinningStart {
		funcs = append(funcs, u32(voidType))
		bodies = append(bodies, spinBody())
	}

	var exports [][]byte
	if !g.OmitExport {
		name := g.ExportName
		if name == "" {
			name = "filter_value"
		}
		exports = append(exports, export(name, 0x00, filterIdx))
	}
	if g.Memory {
		exports = append(exports, export("memory", 0x02, 0))
	}
	if g.SpinningStart {
		exports = append(exports, export("_start", 0x00, startIdx))
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(types))...)
	if len(imports) > 0 {
		out = append(out, section(2, vec(imports))...)
	}
	out = append(out, section(3, vec(funcs))...)
	if g.Memory {
		out = append(out, section(5, vec([][]byte{{0x00, 0x01}}))...)
	}
	global := append([]byte{byte(F64), 0x01}, f64Const(g.Initial)...)
	global = append(global, 0x0b)
	out = append(out, section(6, vec([][]byte{global}))...)
	if len(exports) > 0 {
		out = append(out, section(7, vec(exports))...)
	}

	code := make([][]byte, len(bodies))
	for i, b := range bodies {
		code[i] = append(u32(uint32(len(b))), b...)
	}
	out = append(out, section(10, vec(code))...)

	if g.Memory && g.LogText != "" {
		seg := []byte{0x00, 0x41}
		seg = append(seg, s32(TextOffset)...)
		seg = append(seg, 0x0b)
		text := append([]byte(g.LogText), 0x00)
		seg = append(seg, u32(uint32(len(text)))...)
		seg = append(seg, text...)
		out = append(out, section(11, vec([][]byte{seg}))...)
	}
	return out
}

// filterBody emits the filter function. scratch is the index of the f64 local
// holding the converted input.
func (g Guest) filterBody(logIdx, scratch uint32, param, result ValType) []byte {
	b := []byte{0x01, 0x01, byte(F64)} // one f64 local

	b = append(b, 0x20, 0x00) // local.get 0
	switch param {
	case F32:
		b = append(b, 0xbb) // f64.promote_f32
	case I32:
		b = append(b, 0xb7) // f64.convert_i32_s
	case I64:
		b = append(b, 0xb9) // f64.convert_i64_s
	}
	b = append(b, 0x21)
	b = append(b, u32(scratch)...)

	if g.TrapBelowZero {
		b = append(b, 0x20)
		b = append(b, u32(scratch)...)
		b = append(b, f64Const(0)...)
		b = append(b, 0x63, 0x04, 0x40, 0x00, 0x0b) // f64.lt; if; unreachable; end
	}
	if g.SpinAbove > 0 {
		b = append(b, 0x20)
		b = append(b, u32(scratch)...)
		b = append(b, f64Const(g.SpinAbove)...)
		b = append(b, 0x64, 0x04, 0x40)             // f64.gt; if
		b = append(b, 0x03, 0x40, 0x0c, 0x00, 0x0b) // loop; br 0; end
		b = append(b, 0x0b)                         // end if
	}

	switch g.Log {
	case LogTrigger:
		b = append(b, 0x10)
		b = append(b, u32(logIdx)...)
	case LogOffset:
		b = append(b, 0x41)
		b = append(b, s32(g.LogAt)...)
		b = append(b, 0x10)
		b = append(b, u32(logIdx)...)
	}

	// global0 = alpha*x + (1-alpha)*global0
	b = append(b, f64Const(g.Alpha)...)
	b = append(b, 0x20)
	b = append(b, u32(scratch)...)
	b = append(b, 0xa2) // f64.mul
	b = append(b, f64Const(1-g.Alpha)...)
	b = append(b, 0x23, 0x00, 0xa2, 0xa0) // global.get 0; f64.mul; f64.add
	b = append(b, 0x24, 0x00, 0x23, 0x00) // global.set 0; global.get 0

	switch result {
	case F32:
		b = append(b, 0xb6) // f32.demote_f64
	case I32:
		b = append(b, 0xaa) // i32.trunc_f64_s
	case I64:
		b = append(b, 0xb0) // i64.trunc_f64_s
	}
	return append(b, 0x0b)
}

func spinBody() []byte {
	return []byte{0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b}
}

func orF64(t ValType) ValType {
	if t == 0 {
		return F64
	}
	return t
}

func funcType(params, results []ValType) []byte {
	b := []byte{0x60}
	b = append(b, u32(uint32(len(params)))...)
	for _, p := range params {
		b = append(b, byte(p))
	}
	b = append(b, u32(uint32(len(results)))...)
	for _, r := range results {
		b = append(b, byte(r))
	}
	return b
}

func funcImport(module, field string, typeIdx uint32) []byte {
	b := name(module)
	b = append(b, name(field)...)
	b = append(b, 0x00)
	return append(b, u32(typeIdx)...)
}

func export(n string, kind byte, idx uint32) []byte {
	b := name(n)
	b = append(b, kind)
	return append(b, u32(idx)...)
}

func name(s string) []byte {
	return append(u32(uint32(len(s))), s...)
}

func section(id byte, content []byte) []byte {
	b := []byte{id}
	b = append(b, u32(uint32(len(content)))...)
	return append(b, content...)
}

func vec(items [][]byte) []byte {
	b := u32(uint32(len(items)))
	for _, it := range items {
		b = append(b, it...)
	}
	return b
}

func f64Const(v float64) []byte {
	b := make([]byte, 9)
	b[0] = 0x44
	binary.LittleEndian.PutUint64(b[1:], math.Float64bits(v))
	return b
}

// u32 encodes unsigned LEB128.
func u32(v uint32) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// s32 encodes signed LEB128.
func s32(v int32) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
