// Package worker moves remesh jobs across a serialization boundary.
//
// Handles never cross the boundary: a MeshPayload carries the flat
// arrays and kind tag, and the receiving side restores it into a fresh
// handle in its own session. Local runs jobs on a dedicated goroutine
// over a private session; Server and Client speak the same request pair
// over HTTP for process-isolated workers.
package worker
