package binding

import (
	"context"
	"math"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/transfer"
)

// Sizes declares the entity counts of a mesh before bulk upload.
type Sizes struct {
	Vertices int
	Cells    int
	Boundary int
}

// Binding exposes one mesh kind's entry points over a running engine.
type Binding struct {
	c    engine.Caller
	kind mmgwasm.Kind

	prefix         string
	cellPlural     string // "triangles" or "tetrahedra"
	cellSingle     string // "triangle" or "tetrahedron"
	boundaryName   string // "edges" or "triangles"
	boundarySingle string // "edge" or "triangle"
	qualitySing    string
	qualityBulk    string
}

// New creates the binding for one mesh kind.
func New(c engine.Caller, kind mmgwasm.Kind) *Binding {
	b := &Binding{c: c, kind: kind}
	switch kind {
	case mmgwasm.Kind2D:
		b.prefix = "mmg2d_"
		b.cellPlural, b.cellSingle = "triangles", "triangle"
		b.boundaryName, b.boundarySingle = "edges", "edge"
		b.qualitySing, b.qualityBulk = "get_triangle_quality", "get_triangles_qualities"
	case mmgwasm.Kind3D:
		b.prefix = "mmg3d_"
		b.cellPlural, b.cellSingle = "tetrahedra", "tetrahedron"
		b.boundaryName, b.boundarySingle = "triangles", "triangle"
		b.qualitySing, b.qualityBulk = "get_tetrahedron_quality", "get_tetrahedra_qualities"
	case mmgwasm.KindSurface:
		b.prefix = "mmgs_"
		b.cellPlural, b.cellSingle = "triangles", "triangle"
		b.boundaryName, b.boundarySingle = "edges", "edge"
		b.qualitySing, b.qualityBulk = "get_triangle_quality", "get_triangles_qualities"
	}
	return b
}

// Kind returns the mesh kind this binding serves.
func (b *Binding) Kind() mmgwasm.Kind { return b.kind }

// Caller returns the underlying engine.
func (b *Binding) Caller() engine.Caller { return b.c }

func (b *Binding) name(op string) string { return b.prefix + op }

// callI32 invokes an entry point and returns its i32 result.
func (b *Binding) callI32(ctx context.Context, op string, args ...uint64) (int32, error) {
	results, err := b.c.Call(ctx, b.name(op), args...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int32(uint32(results[0])), nil
}

// callChecked invokes a setter entry point that reports 1 on success.
func (b *Binding) callChecked(ctx context.Context, op string, args ...uint64) error {
	code, err := b.callI32(ctx, op, args...)
	if err != nil {
		return err
	}
	if code != 1 {
		return errors.New(errors.PhaseBinding, errors.KindEngineFailure).
			Detail("%s returned %d", b.name(op), code).
			Build()
	}
	return nil
}

// Init acquires a fresh native handle. The engine returns -1 when its
// handle table is full.
func (b *Binding) Init(ctx context.Context) (int32, error) {
	return b.callI32(ctx, "init")
}

// Free releases a native handle.
func (b *Binding) Free(ctx context.Context, h int32) error {
	return b.callChecked(ctx, "free", u(h))
}

// MaxHandles returns the engine's fixed handle capacity for this kind.
func (b *Binding) MaxHandles(ctx context.Context) (int, error) {
	n, err := b.callI32(ctx, "get_max_handles")
	return int(n), err
}

// AvailableHandles returns the engine's current free slot count.
func (b *Binding) AvailableHandles(ctx context.Context) (int, error) {
	n, err := b.callI32(ctx, "get_available_handles")
	return int(n), err
}

// SetMeshSize declares entity counts, allocating engine-side storage.
func (b *Binding) SetMeshSize(ctx context.Context, h int32, s Sizes) error {
	if s.Vertices < 0 || s.Cells < 0 || s.Boundary < 0 {
		return errors.Validation(errors.PhaseBinding, "sizes",
			"negative entity count (vertices=%d cells=%d boundary=%d)",
			s.Vertices, s.Cells, s.Boundary)
	}

	var args []uint64
	switch b.kind {
	case mmgwasm.Kind2D:
		// handle, np, nt, nquad, na
		args = []uint64{u(h), ui(s.Vertices), ui(s.Cells), 0, ui(s.Boundary)}
	case mmgwasm.Kind3D:
		// handle, np, ne, nprism, nt, nquad, na
		args = []uint64{u(h), ui(s.Vertices), ui(s.Cells), 0, ui(s.Boundary), 0, 0}
	case mmgwasm.KindSurface:
		// handle, np, nt, na
		args = []uint64{u(h), ui(s.Vertices), ui(s.Cells), ui(s.Boundary)}
	}
	return b.callChecked(ctx, "set_mesh_size", args...)
}

// GetMeshSize reads the current entity counts.
func (b *Binding) GetMeshSize(ctx context.Context, h int32) (Sizes, error) {
	nOut := 4
	if b.kind == mmgwasm.Kind3D {
		nOut = 6
	} else if b.kind == mmgwasm.KindSurface {
		nOut = 3
	}

	outPtr, err := b.c.Alloc(ctx, uint32(4*nOut))
	if err != nil {
		return Sizes{}, err
	}
	defer b.c.Free(ctx, outPtr)

	args := make([]uint64, 0, nOut+1)
	args = append(args, u(h))
	for j := 0; j < nOut; j++ {
		args = append(args, uint64(outPtr+uint32(4*j)))
	}
	if err := b.callChecked(ctx, "get_mesh_size", args...); err != nil {
		return Sizes{}, err
	}

	vals, err := transfer.ReadInt32s(b.c.Memory(), outPtr, nOut)
	if err != nil {
		return Sizes{}, err
	}

	switch b.kind {
	case mmgwasm.Kind2D:
		// np, nt, nquad, na
		return Sizes{Vertices: int(vals[0]), Cells: int(vals[1]), Boundary: int(vals[3])}, nil
	case mmgwasm.Kind3D:
		// np, ne, nprism, nt, nquad, na
		return Sizes{Vertices: int(vals[0]), Cells: int(vals[1]), Boundary: int(vals[3])}, nil
	default:
		// np, nt, na
		return Sizes{Vertices: int(vals[0]), Cells: int(vals[1]), Boundary: int(vals[2])}, nil
	}
}

// Remesh invokes the kind's adaptation entry point and returns the raw
// engine code (engine.CodeSuccess and friends). A non-success code is
// not an error at this layer.
func (b *Binding) Remesh(ctx context.Context, h int32) (int, error) {
	code, err := b.callI32(ctx, "remesh", u(h))
	return int(code), err
}

func u(h int32) uint64   { return uint64(uint32(h)) }
func ui(n int) uint64    { return uint64(uint32(int32(n))) }
func f(v float64) uint64 { return math.Float64bits(v) }
