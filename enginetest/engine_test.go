package enginetest

import (
	"context"
	"math"
	"testing"

	"github.com/mmgwasm/mmgwasm"
)

func TestArenaDoubleFree(t *testing.T) {
	ctx := context.Background()
	e := New()

	ptr, err := e.Alloc(ctx, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := e.Free(ctx, ptr); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := e.Free(ctx, ptr); err == nil {
		t.Fatal("double free not detected")
	}
	if err := e.Free(ctx, 0); err == nil {
		t.Fatal("null free not detected")
	}
}

func TestHandleTableExhaustion(t *testing.T) {
	ctx := context.Background()
	e := New()

	for i := 0; i < maxHandles; i++ {
		res, err := e.Call(ctx, "mmg2d_init")
		if err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
		if int32(uint32(res[0])) < 0 {
			t.Fatalf("init %d returned negative handle", i)
		}
	}

	res, err := e.Call(ctx, "mmg2d_init")
	if err != nil {
		t.Fatalf("init at capacity: %v", err)
	}
	if int32(uint32(res[0])) != -1 {
		t.Fatalf("init at capacity = %d, want -1", int32(uint32(res[0])))
	}

	// Tables are per kind: the volumetric table is untouched.
	res, err = e.Call(ctx, "mmg3d_init")
	if err != nil {
		t.Fatalf("3d init: %v", err)
	}
	if int32(uint32(res[0])) < 0 {
		t.Fatal("3d table exhausted by 2d handles")
	}
}

func TestHandleReuseAfterFree(t *testing.T) {
	ctx := context.Background()
	e := New()

	res, _ := e.Call(ctx, "mmgs_init")
	h := res[0]
	if res, _ := e.Call(ctx, "mmgs_free", h); res[0] != 1 {
		t.Fatal("free failed")
	}
	if res, _ := e.Call(ctx, "mmgs_free", h); res[0] != 0 {
		t.Fatal("double handle free succeeded")
	}

	res, _ = e.Call(ctx, "mmgs_get_available_handles")
	if int32(uint32(res[0])) != maxHandles {
		t.Fatalf("available = %d, want %d", int32(uint32(res[0])), maxHandles)
	}
}

func TestTriangleQuality(t *testing.T) {
	// Equilateral triangle has quality 1, degenerate 0.
	eq := triQuality(
		[]float64{0, 0},
		[]float64{1, 0},
		[]float64{0.5, math.Sqrt(3) / 2},
	)
	if math.Abs(eq-1) > 1e-12 {
		t.Fatalf("equilateral quality = %g, want 1", eq)
	}

	deg := triQuality([]float64{0, 0}, []float64{1, 0}, []float64{2, 0})
	if deg != 0 {
		t.Fatalf("degenerate quality = %g, want 0", deg)
	}
}

func TestTetQuality(t *testing.T) {
	// Regular tetrahedron with unit edges.
	h := math.Sqrt(3) / 2
	reg := tetQuality(
		[]float64{0, 0, 0},
		[]float64{1, 0, 0},
		[]float64{0.5, h, 0},
		[]float64{0.5, h / 3, math.Sqrt(2.0 / 3.0)},
	)
	if math.Abs(reg-1) > 1e-9 {
		t.Fatalf("regular tet quality = %g, want 1", reg)
	}

	flat := tetQuality(
		[]float64{0, 0, 0},
		[]float64{1, 0, 0},
		[]float64{0, 1, 0},
		[]float64{1, 1, 0},
	)
	if flat != 0 {
		t.Fatalf("flat tet quality = %g, want 0", flat)
	}
}

func TestSubdivisionRefines(t *testing.T) {
	st := newMeshState(mmgwasm.Kind2D)
	st.np, st.nt, st.na = 3, 1, 3
	st.verts = []float64{0, 0, 1, 0, 0, 1}
	st.cells = []int32{1, 2, 3}
	st.boundary = []int32{1, 2, 2, 3, 3, 1}

	before := st.longestEdge()
	st.subdivide()

	if got := len(st.verts) / 2; got != 6 {
		t.Fatalf("vertices after subdivision = %d, want 6", got)
	}
	if got := len(st.cells) / 3; got != 4 {
		t.Fatalf("cells after subdivision = %d, want 4", got)
	}
	if got := len(st.boundary) / 2; got != 6 {
		t.Fatalf("boundary after subdivision = %d, want 6", got)
	}
	if after := st.longestEdge(); after >= before {
		t.Fatalf("longest edge %g did not shrink from %g", after, before)
	}
}

func TestRemeshHonorsHmax(t *testing.T) {
	build := func() *meshState {
		st := newMeshState(mmgwasm.Kind2D)
		st.np, st.nt = 3, 1
		st.verts = []float64{0, 0, 1, 0, 0, 1}
		st.cells = []int32{1, 2, 3}
		return st
	}

	coarse := build()
	coarse.dparams[hmaxKeys[mmgwasm.Kind2D]] = 0.8
	if code := coarse.remesh(); code != 0 {
		t.Fatalf("remesh code %d", code)
	}

	fine := build()
	fine.dparams[hmaxKeys[mmgwasm.Kind2D]] = 0.2
	if code := fine.remesh(); code != 0 {
		t.Fatalf("remesh code %d", code)
	}

	if fine.np < coarse.np {
		t.Fatalf("smaller hmax gave fewer vertices: %d < %d", fine.np, coarse.np)
	}
	if fine.longestEdge() > 0.2*math.Sqrt2 {
		t.Fatalf("longest edge %g after hmax 0.2", fine.longestEdge())
	}
}

func TestRemeshEmptyMeshFails(t *testing.T) {
	st := newMeshState(mmgwasm.Kind3D)
	if code := st.remesh(); code != 2 {
		t.Fatalf("empty mesh remesh code %d, want 2", code)
	}
}

func TestVersionExports(t *testing.T) {
	ctx := context.Background()
	e := New()

	for _, name := range []string{"mmg_version", "mmgwasm_version"} {
		res, err := e.Call(ctx, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		s, err := e.readCString(uint32(res[0]))
		if err != nil || s == "" {
			t.Fatalf("%s string %q, err=%v", name, s, err)
		}

		// Static strings: repeated calls return the same pointer.
		again, err := e.Call(ctx, name)
		if err != nil || again[0] != res[0] {
			t.Fatalf("%s pointer moved: %d -> %d, err=%v", name, res[0], again[0], err)
		}
	}
}

func TestEmptyGetterWritesZeroCount(t *testing.T) {
	ctx := context.Background()
	e := New()

	res, _ := e.Call(ctx, "mmg2d_init")
	h := res[0]

	out, err := e.Alloc(ctx, 4)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	res, err = e.Call(ctx, "mmg2d_get_edges", h, uint64(out))
	if err != nil {
		t.Fatalf("get_edges: %v", err)
	}
	if res[0] != 0 {
		t.Fatalf("empty getter returned pointer %d, want null", res[0])
	}
	n, err := e.Memory().ReadU32(out)
	if err != nil || n != 0 {
		t.Fatalf("out-count = %d, err=%v, want 0", n, err)
	}
}

func TestVirtualStorage(t *testing.T) {
	e := New()
	if err := e.WriteFile("in.mesh", []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := e.ReadFile("in.mesh")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("read back %q", data)
	}
	if _, err := e.ReadFile("missing"); err == nil {
		t.Fatal("missing file read succeeded")
	}
	if got := e.GuestPath("in.mesh"); got != "/work/in.mesh" {
		t.Fatalf("guest path %q", got)
	}
}
