package binding

import (
	"context"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/transfer"
)

// SetVertices uploads all vertex coordinates at once. coords length must
// be an exact multiple of the kind's dimensionality; refs is nil or one
// reference tag per vertex.
func (b *Binding) SetVertices(ctx context.Context, h int32, coords []float64, refs []int32) error {
	dim := b.kind.Dim()
	if len(coords) == 0 || len(coords)%dim != 0 {
		return errors.Validation(errors.PhaseBinding, "vertices",
			"coordinate array length %d is not a positive multiple of stride %d", len(coords), dim)
	}
	if refs != nil && len(refs)*dim != len(coords) {
		return errors.Validation(errors.PhaseBinding, "vertexRefs",
			"got %d refs for %d vertices", len(refs), len(coords)/dim)
	}
	return b.bulkSet(ctx, h, "set_vertices", coords, refs)
}

// GetVertices reads all vertex coordinates back, flat, stride Dim().
func (b *Binding) GetVertices(ctx context.Context, h int32) ([]float64, error) {
	return b.getFloat64Array(ctx, h, "get_vertices", b.kind.Dim())
}

// SetVertex uploads a single vertex at 1-indexed position pos.
func (b *Binding) SetVertex(ctx context.Context, h int32, coord []float64, ref int32, pos int) error {
	dim := b.kind.Dim()
	if len(coord) != dim {
		return errors.Validation(errors.PhaseBinding, "vertex",
			"got %d coordinates, want %d", len(coord), dim)
	}
	if pos < 1 {
		return errors.Validation(errors.PhaseBinding, "pos", "position %d is not 1-indexed", pos)
	}
	args := []uint64{u(h)}
	for _, c := range coord {
		args = append(args, f(c))
	}
	args = append(args, u(ref), ui(pos))
	return b.callChecked(ctx, "set_vertex", args...)
}

// SetCells uploads all cells (triangles or tetrahedra). conn holds
// 1-indexed vertex indices, length an exact multiple of the cell arity.
func (b *Binding) SetCells(ctx context.Context, h int32, conn []int32, refs []int32) error {
	arity := b.kind.CellArity()
	if err := b.validateConn("cells", conn, refs, arity); err != nil {
		return err
	}
	return b.bulkSetInt(ctx, h, "set_"+b.cellPlural, conn, refs)
}

// GetCells reads all cell connectivity back, flat, 1-indexed.
func (b *Binding) GetCells(ctx context.Context, h int32) ([]int32, error) {
	return b.getInt32Array(ctx, h, "get_"+b.cellPlural, b.kind.CellArity())
}

// SetCell uploads a single cell at 1-indexed position pos.
func (b *Binding) SetCell(ctx context.Context, h int32, conn []int32, ref int32, pos int) error {
	arity := b.kind.CellArity()
	if len(conn) != arity {
		return errors.Validation(errors.PhaseBinding, "cell",
			"got %d vertex indices, want %d", len(conn), arity)
	}
	if pos < 1 {
		return errors.Validation(errors.PhaseBinding, "pos", "position %d is not 1-indexed", pos)
	}
	args := []uint64{u(h)}
	for _, v := range conn {
		args = append(args, u(v))
	}
	args = append(args, u(ref), ui(pos))
	return b.callChecked(ctx, "set_"+b.cellSingle, args...)
}

// SetBoundary uploads all boundary elements (edges for 2-D and surface
// meshes, triangles for volumetric meshes).
func (b *Binding) SetBoundary(ctx context.Context, h int32, conn []int32, refs []int32) error {
	arity := b.kind.BoundaryArity()
	if err := b.validateConn("boundary", conn, refs, arity); err != nil {
		return err
	}
	return b.bulkSetInt(ctx, h, "set_"+b.boundaryName, conn, refs)
}

// GetBoundary reads all boundary connectivity back, flat, 1-indexed.
func (b *Binding) GetBoundary(ctx context.Context, h int32) ([]int32, error) {
	return b.getInt32Array(ctx, h, "get_"+b.boundaryName, b.kind.BoundaryArity())
}

// SetBoundaryElement uploads a single boundary element (an edge, or a
// triangle for volumetric meshes) at 1-indexed position pos.
func (b *Binding) SetBoundaryElement(ctx context.Context, h int32, conn []int32, ref int32, pos int) error {
	arity := b.kind.BoundaryArity()
	if len(conn) != arity {
		return errors.Validation(errors.PhaseBinding, "boundary",
			"got %d vertex indices, want %d", len(conn), arity)
	}
	if pos < 1 {
		return errors.Validation(errors.PhaseBinding, "pos", "position %d is not 1-indexed", pos)
	}
	args := []uint64{u(h)}
	for _, v := range conn {
		args = append(args, u(v))
	}
	args = append(args, u(ref), ui(pos))
	return b.callChecked(ctx, "set_"+b.boundarySingle, args...)
}

func (b *Binding) validateConn(path string, conn, refs []int32, arity int) error {
	if len(conn) == 0 || len(conn)%arity != 0 {
		return errors.Validation(errors.PhaseBinding, path,
			"connectivity length %d is not a positive multiple of arity %d", len(conn), arity)
	}
	if refs != nil && len(refs)*arity != len(conn) {
		return errors.Validation(errors.PhaseBinding, path+"Refs",
			"got %d refs for %d elements", len(refs), len(conn)/arity)
	}
	for i, v := range conn {
		if v < 1 {
			return errors.Validation(errors.PhaseBinding, path,
				"index %d at position %d: connectivity is 1-indexed", v, i)
		}
	}
	return nil
}

// bulkSet writes a float64 payload plus optional refs and invokes op.
func (b *Binding) bulkSet(ctx context.Context, h int32, op string, values []float64, refs []int32) error {
	al := transfer.NewAllocationList()
	defer al.FreeAndRelease(ctx, b.c)

	ptr, err := transfer.WriteFloat64s(ctx, b.c, values)
	if err != nil {
		return err
	}
	al.Add(ptr)

	var refsPtr uint32
	if refs != nil {
		if refsPtr, err = transfer.WriteInt32s(ctx, b.c, refs); err != nil {
			return err
		}
		al.Add(refsPtr)
	}

	return b.callChecked(ctx, op, u(h), uint64(ptr), uint64(refsPtr))
}

func (b *Binding) bulkSetInt(ctx context.Context, h int32, op string, values []int32, refs []int32) error {
	al := transfer.NewAllocationList()
	defer al.FreeAndRelease(ctx, b.c)

	ptr, err := transfer.WriteInt32s(ctx, b.c, values)
	if err != nil {
		return err
	}
	al.Add(ptr)

	var refsPtr uint32
	if refs != nil {
		if refsPtr, err = transfer.WriteInt32s(ctx, b.c, refs); err != nil {
			return err
		}
		al.Add(refsPtr)
	}

	return b.callChecked(ctx, op, u(h), uint64(ptr), uint64(refsPtr))
}

// getArray performs the engine getter protocol: allocate an out-count
// slot, call, copy the result out immediately, free the engine-side
// buffer through free_array, free the out-count slot. The engine
// returns a null pointer with count zero for a mesh that has no
// elements of the requested type; that is an empty result, not a
// failure.
func (b *Binding) getArray(ctx context.Context, h int32, op string) (ptr uint32, count int, cleanup func(), err error) {
	outPtr, err := b.c.Alloc(ctx, 4)
	if err != nil {
		return 0, 0, nil, err
	}

	results, err := b.c.Call(ctx, b.name(op), u(h), uint64(outPtr))
	if err != nil {
		b.c.Free(ctx, outPtr)
		return 0, 0, nil, err
	}
	ptr = uint32(results[0])

	n, err := b.c.Memory().ReadU32(outPtr)
	if err != nil {
		b.c.Free(ctx, outPtr)
		return 0, 0, nil, err
	}
	count = int(int32(n))
	if ptr == 0 && count != 0 {
		b.c.Free(ctx, outPtr)
		return 0, 0, nil, errors.New(errors.PhaseBinding, errors.KindEngineFailure).
			Handle(h).
			Detail("%s returned null for %d elements", b.name(op), count).
			Build()
	}

	cleanup = func() {
		// Engine-side buffers are released through the kind's own
		// free_array entry point, not the raw allocator.
		if ptr != 0 {
			b.c.Call(ctx, b.name("free_array"), uint64(ptr))
		}
		b.c.Free(ctx, outPtr)
	}
	return ptr, count, cleanup, nil
}

func (b *Binding) getFloat64Array(ctx context.Context, h int32, op string, stride int) ([]float64, error) {
	ptr, count, cleanup, err := b.getArray(ctx, h, op)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if count == 0 {
		return nil, nil
	}
	return transfer.ReadFloat64s(b.c.Memory(), ptr, count*stride)
}

func (b *Binding) getInt32Array(ctx context.Context, h int32, op string, stride int) ([]int32, error) {
	ptr, count, cleanup, err := b.getArray(ctx, h, op)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if count == 0 {
		return nil, nil
	}
	return transfer.ReadInt32s(b.c.Memory(), ptr, count*stride)
}
