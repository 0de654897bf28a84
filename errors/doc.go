// Package errors provides structured error types for the mmgwasm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). The Error type includes rich context: the native
// handle, a field path for validation failures, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBinding, errors.KindValidation).
//		Path("vertices").
//		Detail("length %d not divisible by stride %d", n, d).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ResourceExhausted("3d", 64)
//	err := errors.InvalidHandle(errors.PhasePool, handle)
//	err := errors.Disposed("Vertices")
//
// All errors implement the standard error interface; errors.Is matches on
// Phase and Kind, and IsKind tests a category across phases.
package errors
