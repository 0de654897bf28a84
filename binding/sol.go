package binding

import (
	"context"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/transfer"
)

// Solution field layout constants shared by every kind.
const (
	SolAtVertices = 1 // field values attached to vertices

	SolScalar = 1
	SolVector = 2
	SolTensor = 3
)

// SetSolSize declares the solution field layout. Must be called before
// scalar or tensor values are uploaded.
func (b *Binding) SetSolSize(ctx context.Context, h int32, entity, count, solType int) error {
	if count < 0 {
		return errors.Validation(errors.PhaseBinding, "solSize", "negative entity count %d", count)
	}
	return b.callChecked(ctx, "set_sol_size", u(h), ui(entity), ui(count), ui(solType))
}

// GetSolSize reads the declared solution field layout back.
func (b *Binding) GetSolSize(ctx context.Context, h int32) (entity, count, solType int, err error) {
	outPtr, err := b.c.Alloc(ctx, 12)
	if err != nil {
		return 0, 0, 0, err
	}
	defer b.c.Free(ctx, outPtr)

	if err := b.callChecked(ctx, "get_sol_size",
		u(h), uint64(outPtr), uint64(outPtr+4), uint64(outPtr+8)); err != nil {
		return 0, 0, 0, err
	}

	vals, err := transfer.ReadInt32s(b.c.Memory(), outPtr, 3)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(vals[0]), int(vals[1]), int(vals[2]), nil
}

// SetScalarField uploads one scalar per vertex. The field size must have
// been declared with SetSolSize(h, SolAtVertices, len(values), SolScalar).
func (b *Binding) SetScalarField(ctx context.Context, h int32, values []float64) error {
	if len(values) == 0 {
		return errors.Validation(errors.PhaseBinding, "scalarField", "empty field")
	}

	al := transfer.NewAllocationList()
	defer al.FreeAndRelease(ctx, b.c)

	ptr, err := transfer.WriteFloat64s(ctx, b.c, values)
	if err != nil {
		return err
	}
	al.Add(ptr)

	return b.callChecked(ctx, "set_scalar_sols", u(h), uint64(ptr))
}

// GetScalarField reads the scalar field back, one value per vertex.
func (b *Binding) GetScalarField(ctx context.Context, h int32) ([]float64, error) {
	return b.getFloat64Array(ctx, h, "get_scalar_sols", 1)
}

// SetTensorField uploads one symmetric tensor per vertex, flat, with the
// kind's component count per vertex (3 in 2-D, 6 otherwise). The field
// size must have been declared with SolTensor.
func (b *Binding) SetTensorField(ctx context.Context, h int32, values []float64) error {
	comps := b.kind.TensorComponents()
	if len(values) == 0 || len(values)%comps != 0 {
		return errors.Validation(errors.PhaseBinding, "tensorField",
			"length %d is not a positive multiple of %d components", len(values), comps)
	}

	al := transfer.NewAllocationList()
	defer al.FreeAndRelease(ctx, b.c)

	ptr, err := transfer.WriteFloat64s(ctx, b.c, values)
	if err != nil {
		return err
	}
	al.Add(ptr)

	return b.callChecked(ctx, "set_tensor_sols", u(h), uint64(ptr))
}

// GetTensorField reads the tensor field back, flat.
func (b *Binding) GetTensorField(ctx context.Context, h int32) ([]float64, error) {
	return b.getFloat64Array(ctx, h, "get_tensor_sols", b.kind.TensorComponents())
}
