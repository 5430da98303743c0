// Package wazero registers hostfuncs handlers with the wazero runtime.
//
// Guests import host functions from the "env" module. Each registered
// hostfuncs.Function becomes an export taking Arity i32 parameters; the
// adapter hands the handler the calling guest's memory so that reads stay
// inside the guest's own bounds.
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(logger)),
//	    hostfuncs.WithFunction(guestLogger.Function(1)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	envModule, err := wazero.RegisterWithRuntime(ctx, runtime, registry)
package wazero
