// Package engine provides low-level access to the mmg WebAssembly engine
// through wazero.
//
// The engine binary is an emscripten-style core module: a flat list of
// exported functions (mmg2d_*, mmgs_*, mmg3d_*, malloc, free) sharing one
// linear memory. Engine compiles the binary once; each Instance owns a
// running copy with its own memory and a staging directory mounted into
// the guest for filename-addressed load/save entry points.
//
// Instances are not safe for concurrent use.
package engine
