package host

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/hostfuncs"
	hostwazero "github.com/fogbridge/fogbridge/infrastructure/wazero"
	"github.com/fogbridge/fogbridge/internal/abi"
)

// ABIVersion names the contract between host and filter module.
const ABIVersion = abi.Version

// FilterExport is the function every filter module must export.
const FilterExport = "filter_value"

// NoLogImport marks a module that does not import env.log.
const NoLogImport = -1

// Contract is the validated shape of a loaded module.
type Contract struct {
	// FilterParam and FilterResult are the declared types of filter_value.
	FilterParam  api.ValueType
	FilterResult api.ValueType

	// LogArity is 0 for env.log() and 1 for env.log(i32), or NoLogImport.
	LogArity int

	// UsesWASI is set when the module imports wasi_snapshot_preview1.
	UsesWASI bool

	// HasMemory is set when the module exports a linear memory.
	HasMemory bool
}

// Signature renders filter_value's type, e.g. "(f64) -> (f64)".
func (c Contract) Signature() string {
	return abi.Signature([]api.ValueType{c.FilterParam}, []api.ValueType{c.FilterResult})
}

// ValidateContract checks a compiled module against the fogbridge/v1 contract.
// It fails with ExportNotFoundError, ExportSignatureMismatch, or
// ImportSignatureMismatch; nothing is instantiated.
func ValidateContract(compiled wazero.CompiledModule, allowWASI bool) (Contract, error) {
	c := Contract{
		LogArity:  NoLogImport,
		HasMemory: len(compiled.ExportedMemories()) > 0,
	}

	def, ok := compiled.ExportedFunctions()[FilterExport]
	if !ok {
		return c, &sdkErrors.ExportNotFoundError{Name: FilterExport}
	}
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || len(results) != 1 || !abi.IsNumeric(params[0]) || !abi.IsNumeric(results[0]) {
		return c, &sdkErrors.ExportSignatureMismatch{
			Name: FilterExport,
			Got:  abi.Signature(params, results),
			Want: "(f64) -> (f64)",
		}
	}
	c.FilterParam, c.FilterResult = params[0], results[0]

	for _, imp := range compiled.ImportedFunctions() {
		moduleName, name, _ := imp.Import()
		sig := abi.Signature(imp.ParamTypes(), imp.ResultTypes())

		switch {
		case moduleName == hostwazero.DefaultModuleName && name == hostfuncs.LogFunctionName:
			arity, ok := logArity(imp.ParamTypes(), imp.ResultTypes())
			if !ok {
				return c, &sdkErrors.ImportSignatureMismatch{
					Module: moduleName,
					Name:   name,
					Got:    sig,
					Want:   "() -> () or (i32) -> ()",
				}
			}
			c.LogArity = arity
		case moduleName == wasi_snapshot_preview1.ModuleName && allowWASI:
			c.UsesWASI = true
		default:
			return c, &sdkErrors.ImportSignatureMismatch{Module: moduleName, Name: name, Got: sig}
		}
	}

	return c, nil
}

func logArity(params, results []api.ValueType) (int, bool) {
	if len(results) != 0 {
		return 0, false
	}
	switch {
	case len(params) == 0:
		return 0, true
	case len(params) == 1 && params[0] == api.ValueTypeI32:
		return 1, true
	}
	return 0, false
}
