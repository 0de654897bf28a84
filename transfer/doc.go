// Package transfer moves homogeneous numeric arrays between Go slices and
// the engine's linear memory.
//
// Every Write* call allocates exactly the payload size through the
// engine's malloc, copies the data verbatim and returns the offset. The
// offset stays valid until freed; the engine may also reallocate its own
// buffers during a remesh, so callers must never retain offsets across an
// engine call. Record writes in an AllocationList and free them as a
// group once the consuming call returns: an unpaired write is a leak in
// the engine's heap, not in Go's.
package transfer
