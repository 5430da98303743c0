package host

import (
	"context"
	"fmt"

	"github.com/fogbridge/fogbridge/hostfuncs"
	hostwazero "github.com/fogbridge/fogbridge/infrastructure/wazero"
)

// registerHostFunctions instantiates the env module with env.log in the shape
// the contract declares. Modules that do not import env.log get no env module.
func (h *Host) registerHostFunctions(ctx context.Context, contract Contract) error {
	if contract.LogArity == NoLogImport {
		return nil
	}

	opts := []hostfuncs.RegistryOption{
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(h.logger)),
		hostfuncs.WithMiddleware(h.cfg.middleware...),
		hostfuncs.WithFunction(h.guestLogger.Function(contract.LogArity)),
	}
	registry, err := hostfuncs.NewRegistry(opts...)
	if err != nil {
		return fmt.Errorf("failed to build host function registry: %w", err)
	}

	env, err := hostwazero.RegisterWithRuntime(ctx, h.runtime, registry)
	if err != nil {
		return fmt.Errorf("failed to register host functions: %w", err)
	}
	h.envModule = env
	return nil
}
