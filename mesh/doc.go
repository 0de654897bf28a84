// Package mesh is the managed-side mesh abstraction over a running
// engine.
//
// A Session owns the engine caller, one handle pool per mesh kind and
// the kind bindings. Meshes are created from flat arrays (NewMesh) or a
// serialized buffer (LoadMesh); the kind is detected from the data
// unless forced with WithKind. Remesh never mutates its receiver: the
// adapted result comes back as a fresh Mesh on a fresh handle, and the
// source stays valid until disposed.
package mesh
