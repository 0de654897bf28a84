// Package enginetest provides an in-process engine implementing the
// full entry-point surface, for tests that should not depend on a wasm
// binary.
//
// The fake keeps the real contract: fixed 64-slot handle tables per
// kind, malloc/free with double-free detection, the getter out-count
// protocol, and a remesh that honors hmax/hmin through uniform
// longest-edge subdivision. Quality values come from the standard
// normalized shape measures, so quality-based assertions hold.
package enginetest
