package hostfuncs

import (
	"context"
	"fmt"
	"sort"
)

// HandlerRegistry is an immutable collection of named host functions.
// Once created via NewRegistry, functions cannot be added or removed.
type HandlerRegistry struct {
	functions map[string]Function
	names     []string // sorted for consistent iteration
}

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

type registryBuilder struct {
	functions  map[string]Function
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable HandlerRegistry with the given options.
// Returns an error if any function name is registered twice.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware(logger)),
//	    WithFunction(guestLogger.Function(1)),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{
		functions: make(map[string]Function),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.functions))
	for name := range b.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	wrapped := make(map[string]Function, len(b.functions))
	for name, fn := range b.functions {
		h := fn.Handler
		// Apply in reverse so the first middleware wraps outermost.
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		fn.Handler = h
		wrapped[name] = fn
	}

	return &HandlerRegistry{
		functions: wrapped,
		names:     names,
	}, nil
}

// Invoke dispatches a host function call by name. Unknown names are ignored
// and reported as false.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, mem GuestMemory, args []uint64) bool {
	fn, ok := r.functions[name]
	if !ok {
		return false
	}
	fn.Handler(HostContextFrom(ctx, name), mem, args)
	return true
}

// Lookup returns the wrapped function registered under name.
func (r *HandlerRegistry) Lookup(name string) (Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Has returns true if a function with the given name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.functions[name]
	return ok
}

// Names returns a sorted list of all registered function names.
func (r *HandlerRegistry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

func (b *registryBuilder) addFunction(fn Function) error {
	if fn.Name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if fn.Handler == nil {
		return fmt.Errorf("function %q has no handler", fn.Name)
	}
	if fn.Arity < 0 {
		return fmt.Errorf("function %q has negative arity", fn.Name)
	}
	if _, exists := b.functions[fn.Name]; exists {
		return fmt.Errorf("duplicate function name: %q", fn.Name)
	}
	b.functions[fn.Name] = fn
	return nil
}

// WithFunction registers a host function.
func WithFunction(fn Function) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addFunction(fn); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
