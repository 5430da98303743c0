package hostfuncs

import "context"

// GuestMemory is the read-only, bounds-checked view of a guest's linear memory.
// wazero's api.Memory satisfies it.
type GuestMemory interface {
	// Size returns the memory size in bytes.
	Size() uint32

	// Read returns byteCount bytes at offset, or false if the range is out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Handler is the body of a host function. args holds the raw i32 arguments in
// declaration order; mem is the calling guest's memory and may be nil.
type Handler func(ctx context.Context, mem GuestMemory, args []uint64)

// Function is a named host function with its argument count.
// All arguments are i32 and no function returns a value.
type Function struct {
	Name    string
	Arity   int
	Handler Handler
}
