// Package mmgwasm provides a Go binding for the mmg remeshing engine
// compiled to WebAssembly.
//
// The engine (mmg2d, mmg3d and mmgs, built with emscripten-style exports)
// is reachable only through a flat set of exported entry points and one
// block of linear memory. This module layers a safe, typed API on top of
// that surface.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	mmgwasm/        Root package with Memory/Allocator interfaces and Kind
//	├── engine/     wazero integration: module loading, instances, staging
//	├── transfer/   numeric array marshaling through linear memory
//	├── pool/       fixed-capacity native handle pools
//	├── binding/    per-kind typed entry-point wrappers
//	├── mesh/       the immutable Mesh abstraction and remeshing
//	├── sizing/     local refinement constraints (SDF-backed)
//	├── meshfmt/    MEDIT text and binary mesh formats
//	├── worker/     handle-free serialization and isolated workers
//	├── enginetest/ in-process engine fake for tests
//	└── errors/     structured error types
//
// # Quick Start
//
// Load the engine and remesh a unit square:
//
//	eng, err := engine.New(ctx, nil)
//	mod, err := eng.Load(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx)
//	defer inst.Close(ctx)
//
//	ses := mesh.NewSession(inst)
//	m, err := mesh.NewMesh(ctx, ses, mesh.MeshData{
//	    Vertices: verts,
//	    Cells:    tris,
//	    Boundary: edges,
//	})
//	res, err := m.Remesh(ctx, &mesh.Options{MaxEdgeLength: 0.3})
//
// # Thread Safety
//
// An engine Instance is NOT safe for concurrent use; a Session and all
// meshes created from it must be driven from one goroutine, or access
// must be synchronized externally. Use the worker package to run a
// remesh in an isolated context.
//
// # Memory Model
//
// Every array written into the engine's linear memory is paired with
// exactly one free once the consuming call returns. Result arrays
// returned by the engine are copied out immediately: the engine may
// reallocate its internal buffers during a remesh, invalidating any
// previously returned offsets.
package mmgwasm
