package binding

import (
	"context"
	"math"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/transfer"
)

// ElementQuality returns the shape quality of one cell (1-indexed).
// Quality is normalized to [0,1]: 0 degenerate, 1 ideal.
func (b *Binding) ElementQuality(ctx context.Context, h int32, index int) (float64, error) {
	if index < 1 {
		return 0, errors.Validation(errors.PhaseBinding, "index",
			"element index %d is not 1-indexed", index)
	}
	results, err := b.c.Call(ctx, b.name(b.qualitySing), u(h), ui(index))
	if err != nil {
		return 0, err
	}
	return clamp01(math.Float64frombits(results[0])), nil
}

// Qualities returns the shape quality of every cell.
func (b *Binding) Qualities(ctx context.Context, h int32) ([]float64, error) {
	vals, err := b.getFloat64Array(ctx, h, b.qualityBulk, 1)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		vals[i] = clamp01(v)
	}
	return vals, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LoadMesh reads a mesh file from the engine's virtual storage into the
// handle.
func (b *Binding) LoadMesh(ctx context.Context, h int32, name string) error {
	return b.fileOp(ctx, h, "load_mesh", name)
}

// SaveMesh writes the handle's mesh to the engine's virtual storage.
func (b *Binding) SaveMesh(ctx context.Context, h int32, name string) error {
	return b.fileOp(ctx, h, "save_mesh", name)
}

// LoadSol reads a solution file from the engine's virtual storage.
func (b *Binding) LoadSol(ctx context.Context, h int32, name string) error {
	return b.fileOp(ctx, h, "load_sol", name)
}

// SaveSol writes the handle's solution to the engine's virtual storage.
func (b *Binding) SaveSol(ctx context.Context, h int32, name string) error {
	return b.fileOp(ctx, h, "save_sol", name)
}

func (b *Binding) fileOp(ctx context.Context, h int32, op, name string) error {
	if name == "" {
		return errors.Validation(errors.PhaseBinding, "name", "empty file name")
	}

	al := transfer.NewAllocationList()
	defer al.FreeAndRelease(ctx, b.c)

	ptr, err := transfer.WriteCString(ctx, b.c, b.c.GuestPath(name))
	if err != nil {
		return err
	}
	al.Add(ptr)

	return b.callChecked(ctx, op, u(h), uint64(ptr))
}
