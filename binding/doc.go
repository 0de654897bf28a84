// Package binding wraps the engine's per-kind entry points
// (mmg2d_*, mmg3d_*, mmgs_*) with typed, validated operations.
//
// All validation happens before any foreign call: array lengths must be
// exact multiples of the kind's stride or arity, reference arrays must
// match element counts, and connectivity is 1-indexed. The 1-indexed
// convention is the externally observed contract (downstream consumers
// and the mesh file formats depend on it) and the engine shares it, so
// indices pass through unchanged in both directions.
//
// Engine getters return a malloc'd pointer plus an out-count written
// through a pointer argument. The binding copies the array out
// immediately, releases the engine-side buffer through the kind's
// free_array entry point and frees its own out-parameter, so every
// allocation is paired with exactly one free.
package binding
