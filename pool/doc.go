// Package pool tracks the fixed set of native mesh handles the engine
// exposes per mesh kind.
//
// The engine owns the handle table; a Pool mirrors its liveness state on
// the Go side so that exhaustion, double release and use-after-release
// are caught before a foreign call is made. One pool exists per mesh
// kind for the lifetime of a session and is never resized.
package pool
