package wazero

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/fogbridge/fogbridge/hostfuncs"
	"github.com/fogbridge/fogbridge/internal/wasmtest"
)

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()

	if cfg.ModuleName != "env" {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, "env")
	}
}

func TestWithModuleName(t *testing.T) {
	cfg := defaultAdapterConfig()
	WithModuleName("custom_module")(&cfg)

	if cfg.ModuleName != "custom_module" {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, "custom_module")
	}
}

func TestI32Params(t *testing.T) {
	if got := i32Params(0); len(got) != 0 {
		t.Errorf("i32Params(0) = %v, want empty", got)
	}
	got := i32Params(2)
	if len(got) != 2 || got[0] != api.ValueTypeI32 || got[1] != api.ValueTypeI32 {
		t.Errorf("i32Params(2) = %v", got)
	}
}

func TestGuestMemory_Nil(t *testing.T) {
	if mem := GuestMemory(nil); mem != nil {
		t.Errorf("GuestMemory(nil) = %v, want nil", mem)
	}
}

func TestGuestMemory_ModuleWithoutMemory(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, wasmtest.Guest{Alpha: 0.5}.Build())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	mem := GuestMemory(mod)
	if mem != nil {
		t.Fatalf("GuestMemory = %#v, want untyped nil", mem)
	}
	msg, err := hostfuncs.ReadGuestString(mem, 0, hostfuncs.DefaultMaxLogBytes)
	if err == nil {
		t.Error("expected out-of-bounds error")
	}
	if msg.Text != hostfuncs.OutOfRangePlaceholder {
		t.Errorf("text = %q, want placeholder", msg.Text)
	}
}

func TestGuestMemory_ExportedMemory(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, wasmtest.Guest{Alpha: 0.5, Memory: true}.Build())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	mem := GuestMemory(mod)
	if mem == nil {
		t.Fatal("GuestMemory = nil, want the exported memory")
	}
	if mem.Size() != wasmtest.MemorySize {
		t.Errorf("Size = %d, want %d", mem.Size(), wasmtest.MemorySize)
	}
}

func TestRegisterWithRuntime_GuestLogWithoutMemory(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var got []string
	registry, err := hostfuncs.NewRegistry(hostfuncs.WithFunction(hostfuncs.Function{
		Name:  "log",
		Arity: 1,
		Handler: func(_ context.Context, mem hostfuncs.GuestMemory, args []uint64) {
			msg, _ := hostfuncs.ReadGuestString(mem, uint32(args[0]), hostfuncs.DefaultMaxLogBytes)
			got = append(got, msg.Text)
		},
	}))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := RegisterWithRuntime(ctx, rt, registry); err != nil {
		t.Fatalf("RegisterWithRuntime: %v", err)
	}

	mod, err := rt.Instantiate(ctx, wasmtest.Guest{Alpha: 0.5, Log: wasmtest.LogOffset}.Build())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if _, err := mod.ExportedFunction("filter_value").Call(ctx, api.EncodeF64(10)); err != nil {
		t.Fatalf("filter_value: %v", err)
	}
	if len(got) != 1 || got[0] != hostfuncs.OutOfRangePlaceholder {
		t.Errorf("logged %q, want one placeholder", got)
	}
}

func TestRegisterWithRuntime_DispatchesGuestCalls(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var gotText string
	var calls int
	registry, err := hostfuncs.NewRegistry(hostfuncs.WithFunction(hostfuncs.Function{
		Name:  "log",
		Arity: 1,
		Handler: func(_ context.Context, mem hostfuncs.GuestMemory, args []uint64) {
			calls++
			msg, _ := hostfuncs.ReadGuestString(mem, uint32(args[0]), hostfuncs.DefaultMaxLogBytes)
			gotText = msg.Text
		},
	}))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := RegisterWithRuntime(ctx, rt, registry); err != nil {
		t.Fatalf("RegisterWithRuntime: %v", err)
	}

	mod, err := rt.Instantiate(ctx, wasmtest.FilterGuest(0.5).Build())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	results, err := mod.ExportedFunction("filter_value").Call(ctx, api.EncodeF64(10))
	if err != nil {
		t.Fatalf("filter_value: %v", err)
	}
	if got := api.DecodeF64(results[0]); got != 5 {
		t.Errorf("filter_value(10) = %v, want 5", got)
	}
	if calls != 1 {
		t.Errorf("log calls = %d, want 1", calls)
	}
	if gotText != "filter ready" {
		t.Errorf("log text = %q, want %q", gotText, "filter ready")
	}
}

func TestRegisterWithRuntime_ModuleName(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	registry, err := hostfuncs.NewRegistry(hostfuncs.WithFunction(hostfuncs.NewGuestLogger(nil).Function(0)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	mod, err := RegisterWithRuntime(ctx, rt, registry, WithModuleName("diag"))
	if err != nil {
		t.Fatalf("RegisterWithRuntime: %v", err)
	}
	if mod.Name() != "diag" {
		t.Errorf("module name = %q, want %q", mod.Name(), "diag")
	}

	// The guest imports env.log, which is not provided under "diag".
	if _, err := rt.Instantiate(ctx, wasmtest.Guest{Alpha: 0.5, Log: wasmtest.LogTrigger}.Build()); err == nil {
		t.Error("expected link failure for env.log")
	}
}
