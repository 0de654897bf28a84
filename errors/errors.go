package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhasePool      Phase = "pool"      // handle acquire/release
	PhaseTransfer  Phase = "transfer"  // linear-memory marshaling
	PhaseBinding   Phase = "binding"   // typed entry-point wrappers
	PhaseMesh      Phase = "mesh"      // mesh abstraction
	PhaseRemesh    Phase = "remesh"    // remesh protocol
	PhaseFormat    Phase = "format"    // mesh file encoding/decoding
	PhaseSerialize Phase = "serialize" // worker payloads
	PhaseEngine    Phase = "engine"    // raw engine calls
)

// Kind categorizes the error
type Kind string

const (
	KindResourceExhausted Kind = "resource_exhausted"
	KindInvalidHandle     Kind = "invalid_handle"
	KindDisposed          Kind = "disposed"
	KindValidation        Kind = "validation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindEngineFailure     Kind = "engine_failure"
	KindNotFound          Kind = "not_found"
	KindInvalidData       Kind = "invalid_data"
)

// Error is the structured error type used throughout the library.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Handle int32
	// HasHandle distinguishes handle 0 from no handle at all.
	HasHandle bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.HasHandle {
		fmt.Fprintf(&b, " (handle %d)", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error on Phase and Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is a *Error of the given kind, in any phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Handle attaches the native handle the error refers to.
func (b *Builder) Handle(h int32) *Builder {
	b.err.Handle = h
	b.err.HasHandle = true
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// ResourceExhausted reports a handle pool at capacity.
func ResourceExhausted(kind string, capacity int) *Error {
	return New(PhasePool, KindResourceExhausted).
		Detail("%s handle pool at capacity (%d live)", kind, capacity).
		Build()
}

// InvalidHandle reports an unknown or already-released handle.
func InvalidHandle(phase Phase, handle int32) *Error {
	return New(phase, KindInvalidHandle).
		Handle(handle).
		Detail("handle is unknown or already released").
		Build()
}

// Disposed reports an operation on a disposed mesh.
func Disposed(op string) *Error {
	return New(PhaseMesh, KindDisposed).
		Detail("%s called on a disposed mesh", op).
		Build()
}

// Validation reports a pre-call validation failure.
func Validation(phase Phase, path string, msg string, args ...any) *Error {
	b := New(phase, KindValidation).Detail(msg, args...)
	if path != "" {
		b = b.Path(path)
	}
	return b.Build()
}

// EngineFailure reports a failed raw engine call.
func EngineFailure(op string, cause error) *Error {
	return New(PhaseEngine, KindEngineFailure).
		Detail("engine call %s failed", op).
		Cause(cause).
		Build()
}

// OutOfBounds reports a linear-memory access outside the current memory.
func OutOfBounds(offset, length uint32) *Error {
	return New(PhaseTransfer, KindOutOfBounds).
		Detail("access out of bounds: offset=%d length=%d", offset, length).
		Build()
}
