package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/hostfuncs"
	hostwazero "github.com/fogbridge/fogbridge/infrastructure/wazero"
)

// Host owns the sandbox runtime and the single live instance of the filter module.
type Host struct {
	mu          sync.Mutex
	runtime     wazero.Runtime
	compiled    wazero.CompiledModule
	envModule   api.Module
	instance    *Instance
	contract    Contract
	cfg         hostConfig
	logger      *slog.Logger
	guestLogger *hostfuncs.GuestLogger
	generation  int
	closed      bool
}

// Instance is one instantiation of the filter module. Its filter state lives
// in guest globals or memory and is only advanced through filter_value.
type Instance struct {
	module     api.Module
	filter     api.Function
	contract   Contract
	generation int
}

// Generation numbers instances from 1; it increases when a closed instance is replaced.
func (i *Instance) Generation() int {
	return i.generation
}

// Contract returns the validated module shape.
func (i *Instance) Contract() Contract {
	return i.contract
}

// New creates a Host with a fresh runtime. Guest calls are interrupted when
// their context is done.
func New(ctx context.Context, opts ...Option) (*Host, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	guestLogger := cfg.guestLogger
	if guestLogger == nil {
		guestLogger = hostfuncs.NewGuestLogger(logger)
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	return &Host{
		runtime:     wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cfg:         cfg,
		logger:      logger,
		guestLogger: guestLogger,
	}, nil
}

// Load validates and instantiates the module. It may be called once per Host.
//
// Errors: ModuleLoadError for binaries that do not compile or instantiate,
// ExportNotFoundError when filter_value is absent, ExportSignatureMismatch and
// ImportSignatureMismatch when the module breaks the contract.
func (h *Host) Load(ctx context.Context, moduleBytes []byte) (*Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, sdkErrors.ErrInstanceClosed
	}
	if h.compiled != nil {
		return nil, &sdkErrors.ModuleLoadError{Phase: "compile", Err: fmt.Errorf("a module is already loaded")}
	}

	compiled, err := h.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, &sdkErrors.ModuleLoadError{Phase: "compile", Err: err}
	}

	contract, err := ValidateContract(compiled, h.cfg.allowWASI)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	if err := h.registerHostFunctions(ctx, contract); err != nil {
		_ = compiled.Close(ctx)
		return nil, &sdkErrors.ModuleLoadError{Phase: "instantiate", Err: err}
	}
	if contract.UsesWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, h.runtime); err != nil {
			_ = compiled.Close(ctx)
			return nil, &sdkErrors.ModuleLoadError{Phase: "instantiate", Err: err}
		}
	}

	h.compiled = compiled
	h.contract = contract

	inst, err := h.instantiateLocked(ctx)
	if err != nil {
		return nil, err
	}
	h.instance = inst

	h.logger.InfoContext(ctx, "sandbox module loaded",
		"abi", ABIVersion,
		"filter_signature", contract.Signature(),
		"log_arity", contract.LogArity,
		"wasi", contract.UsesWASI,
		"memory", contract.HasMemory,
	)
	return inst, nil
}

// instantiateLocked creates a new instance from the compiled module. Start
// functions are not run, so a guest main loop cannot stall the host;
// _initialize runs when exported.
func (h *Host) instantiateLocked(ctx context.Context) (*Instance, error) {
	if h.cfg.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.loadTimeout)
		defer cancel()
	}

	h.generation++
	modConfig := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("filter-%d", h.generation)).
		WithStartFunctions()

	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, modConfig)
	if err != nil {
		return nil, &sdkErrors.ModuleLoadError{Phase: "instantiate", Err: err}
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, &sdkErrors.ModuleLoadError{Phase: "initialize", Err: err}
		}
	}

	filter := mod.ExportedFunction(FilterExport)
	if filter == nil {
		_ = mod.Close(ctx)
		return nil, &sdkErrors.ExportNotFoundError{Name: FilterExport}
	}

	return &Instance{
		module:     mod,
		filter:     filter,
		contract:   h.contract,
		generation: h.generation,
	}, nil
}

// acquire returns the live instance, replacing one that a trap has closed
// when reinstantiation is enabled. Callers hold the Invoker lock.
func (h *Host) acquire(ctx context.Context) (*Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, sdkErrors.ErrInstanceClosed
	}
	if h.instance == nil {
		return nil, sdkErrors.ErrNotLoaded
	}
	if !h.instance.module.IsClosed() {
		return h.instance, nil
	}
	if !h.cfg.reinstantiate {
		return nil, sdkErrors.ErrInstanceClosed
	}

	h.logger.WarnContext(ctx, "sandbox instance closed by trap, reinstantiating; filter state is reset",
		"generation", h.instance.generation)
	inst, err := h.instantiateLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sdkErrors.ErrInstanceClosed, err)
	}
	h.instance = inst
	return inst, nil
}

// Instance returns the live instance, or nil before Load.
func (h *Host) Instance() *Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance
}

// MemoryView returns a bounds-checked view of the live instance's linear
// memory, or nil when there is no instance or it exports no memory.
func (h *Host) MemoryView() hostfuncs.GuestMemory {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.instance == nil || !h.instance.contract.HasMemory {
		return nil
	}
	return hostwazero.GuestMemory(h.instance.module)
}

// Close releases the runtime and every module in it. Safe to call more than once.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.instance = nil
	return h.runtime.Close(ctx)
}
