package wazero

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/fogbridge/fogbridge/hostfuncs"
)

// DefaultModuleName is the import module guests resolve host functions from.
const DefaultModuleName = "env"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// ModuleName is the host module name (default: "env").
	ModuleName string
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "env").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: DefaultModuleName,
	}
}

// RegisterWithRuntime instantiates a host module exporting every function in
// registry. Each function takes Arity i32 parameters and returns nothing; the
// calling guest's memory is handed to the handler as a hostfuncs.GuestMemory.
//
// Example:
//
//	registry, _ := hostfuncs.NewRegistry(
//	    hostfuncs.WithFunction(guestLogger.Function(1)),
//	)
//	closer, err := wazero.RegisterWithRuntime(ctx, runtime, registry)
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) (api.Module, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		fn, _ := registry.Lookup(name)
		funcName := name // capture for closure
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				registry.Invoke(ctx, funcName, GuestMemory(mod), stack)
			}), i32Params(fn.Arity), nil).
			WithName(cfg.ModuleName + "." + funcName).
			Export(funcName)
	}

	return builder.Instantiate(ctx)
}

// GuestMemory returns the module's exported memory, or an untyped nil when
// it exports none. api.Module.Memory hands back a nil *MemoryInstance inside
// a non-nil interface for memoryless modules, so it is never used here.
func GuestMemory(mod api.Module) hostfuncs.GuestMemory {
	if mod == nil {
		return nil
	}
	for name := range mod.ExportedMemoryDefinitions() {
		if mem := mod.ExportedMemory(name); mem != nil {
			return mem
		}
	}
	return nil
}

func i32Params(n int) []api.ValueType {
	params := make([]api.ValueType, n)
	for i := range params {
		params[i] = api.ValueTypeI32
	}
	return params
}
