package engine

import (
	"context"

	"github.com/mmgwasm/mmgwasm"
)

// Return codes shared by every remesh entry point.
const (
	CodeSuccess       = 0 // adaptation completed
	CodeLowFailure    = 1 // adaptation degraded but mesh is usable
	CodeStrongFailure = 2 // adaptation failed, mesh unusable
)

// Caller is the surface the binding layer needs from a running engine.
// Both the wazero-backed Instance and the enginetest fake implement it.
type Caller interface {
	// Call invokes an exported entry point by name. Arguments and results
	// are raw 64-bit stack values per the core WebAssembly calling
	// convention (i32 zero-extended, f64 bit-cast).
	Call(ctx context.Context, name string, args ...uint64) ([]uint64, error)

	// Memory returns the engine's linear memory.
	Memory() mmgwasm.Memory

	// Alloc reserves size bytes in linear memory via the engine's malloc.
	Alloc(ctx context.Context, size uint32) (uint32, error)

	// Free releases a block previously returned by Alloc or by an engine
	// getter. Freeing an unknown offset is an error, never silent.
	Free(ctx context.Context, ptr uint32) error

	// WriteFile stages a file into the engine's virtual storage.
	WriteFile(name string, data []byte) error

	// ReadFile reads a file back from the engine's virtual storage.
	ReadFile(name string) ([]byte, error)

	// GuestPath translates a storage name into the path the engine sees.
	GuestPath(name string) string

	// Close releases the instance and its memory.
	Close(ctx context.Context) error
}
