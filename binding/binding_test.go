package binding

import (
	"context"
	"math"
	"testing"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/enginetest"
	"github.com/mmgwasm/mmgwasm/errors"
)

var (
	squareVerts = []float64{0, 0, 1, 0, 1, 1, 0, 1}
	squareTris  = []int32{1, 2, 3, 1, 3, 4}
	squareEdges = []int32{1, 2, 2, 3, 3, 4, 4, 1}
)

func newTestBinding(t *testing.T, kind mmgwasm.Kind) (*Binding, *enginetest.Engine, int32) {
	t.Helper()
	e := enginetest.New()
	b := New(e, kind)
	h, err := b.Init(context.Background())
	if err != nil || h < 0 {
		t.Fatalf("init: handle=%d err=%v", h, err)
	}
	return b, e, h
}

func uploadSquare(t *testing.T, b *Binding, h int32) {
	t.Helper()
	ctx := context.Background()
	if err := b.SetMeshSize(ctx, h, Sizes{Vertices: 4, Cells: 2, Boundary: 4}); err != nil {
		t.Fatalf("set mesh size: %v", err)
	}
	if err := b.SetVertices(ctx, h, squareVerts, nil); err != nil {
		t.Fatalf("set vertices: %v", err)
	}
	if err := b.SetCells(ctx, h, squareTris, nil); err != nil {
		t.Fatalf("set cells: %v", err)
	}
	if err := b.SetBoundary(ctx, h, squareEdges, nil); err != nil {
		t.Fatalf("set boundary: %v", err)
	}
}

func TestHandleLifecycle(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)

	max, err := b.MaxHandles(ctx)
	if err != nil || max != 64 {
		t.Fatalf("max handles = %d, err=%v", max, err)
	}
	avail, err := b.AvailableHandles(ctx)
	if err != nil || avail != 63 {
		t.Fatalf("available = %d, err=%v", avail, err)
	}

	if err := b.Free(ctx, h); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := b.Free(ctx, h); err == nil {
		t.Fatal("double free succeeded")
	}
}

func TestVertexRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, e, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	got, err := b.GetVertices(ctx, h)
	if err != nil {
		t.Fatalf("get vertices: %v", err)
	}
	if len(got) != len(squareVerts) {
		t.Fatalf("got %d coords, want %d", len(got), len(squareVerts))
	}
	for i, v := range squareVerts {
		if got[i] != v {
			t.Fatalf("coord %d = %g, want %g", i, got[i], v)
		}
	}

	cells, err := b.GetCells(ctx, h)
	if err != nil {
		t.Fatalf("get cells: %v", err)
	}
	for i, v := range squareTris {
		if cells[i] != v {
			t.Fatalf("cell index %d = %d, want %d", i, cells[i], v)
		}
	}

	// The getter protocol must leave no engine-side allocations behind.
	if n := e.LiveAllocations(); n != 0 {
		t.Fatalf("%d allocations leaked by getters", n)
	}
}

func TestMeshSizeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	sizes, err := b.GetMeshSize(ctx, h)
	if err != nil {
		t.Fatalf("get mesh size: %v", err)
	}
	if sizes.Vertices != 4 || sizes.Cells != 2 || sizes.Boundary != 4 {
		t.Fatalf("sizes = %+v", sizes)
	}
}

func TestSetVerticesValidation(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)

	err := b.SetVertices(ctx, h, []float64{0, 0, 1}, nil)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("odd coordinate count accepted: %v", err)
	}
	err = b.SetVertices(ctx, h, squareVerts, []int32{1})
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("short refs accepted: %v", err)
	}
}

func TestConnectivityValidation(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)

	err := b.SetCells(ctx, h, []int32{1, 2}, nil)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("short cell accepted: %v", err)
	}
	err = b.SetCells(ctx, h, []int32{0, 1, 2}, nil)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("0-indexed connectivity accepted: %v", err)
	}
}

func TestParamTables(t *testing.T) {
	ctx := context.Background()

	b2, _, h2 := newTestBinding(t, mmgwasm.Kind2D)
	if err := b2.SetIntParam(ctx, h2, IPNoInsert, 1); err != nil {
		t.Fatalf("2d noinsert: %v", err)
	}
	if err := b2.SetRealParam(ctx, h2, DPHMax, 0.5); err != nil {
		t.Fatalf("2d hmax: %v", err)
	}

	bs, _, hs := newTestBinding(t, mmgwasm.KindSurface)
	err := bs.SetIntParam(ctx, hs, IPNoSurf, 1)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("nosurf on surface mesh accepted: %v", err)
	}
	if err := bs.SetRealParam(ctx, hs, DPHausd, 0.01); err != nil {
		t.Fatalf("surface hausd: %v", err)
	}
}

func TestScalarFieldRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	field := []float64{0.1, 0.2, 0.3, 0.4}
	if err := b.SetSolSize(ctx, h, SolAtVertices, 4, SolScalar); err != nil {
		t.Fatalf("set sol size: %v", err)
	}
	if err := b.SetScalarField(ctx, h, field); err != nil {
		t.Fatalf("set scalar field: %v", err)
	}

	entity, count, solType, err := b.GetSolSize(ctx, h)
	if err != nil {
		t.Fatalf("get sol size: %v", err)
	}
	if entity != SolAtVertices || count != 4 || solType != SolScalar {
		t.Fatalf("sol size = %d/%d/%d", entity, count, solType)
	}

	got, err := b.GetScalarField(ctx, h)
	if err != nil {
		t.Fatalf("get scalar field: %v", err)
	}
	for i, v := range field {
		if got[i] != v {
			t.Fatalf("field value %d = %g, want %g", i, got[i], v)
		}
	}
}

func TestScalarFieldRequiresDeclaredSize(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	if err := b.SetScalarField(ctx, h, []float64{1, 2, 3, 4}); err == nil {
		t.Fatal("scalar field accepted without a declared size")
	}
}

func TestTensorFieldValidation(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind3D)

	err := b.SetTensorField(ctx, h, []float64{1, 2, 3, 4})
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("non-multiple tensor length accepted: %v", err)
	}
}

func TestQualitySingleMatchesBulk(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	bulk, err := b.Qualities(ctx, h)
	if err != nil {
		t.Fatalf("bulk qualities: %v", err)
	}
	if len(bulk) != 2 {
		t.Fatalf("got %d qualities, want 2", len(bulk))
	}
	for i := range bulk {
		single, err := b.ElementQuality(ctx, h, i+1)
		if err != nil {
			t.Fatalf("single quality %d: %v", i+1, err)
		}
		if single != bulk[i] {
			t.Fatalf("quality %d: single %g != bulk %g", i+1, single, bulk[i])
		}
		if bulk[i] < 0 || bulk[i] > 1 {
			t.Fatalf("quality %d = %g outside [0,1]", i+1, bulk[i])
		}
	}

	// Right isoceles triangles: q = 4*sqrt(3)*A / sum(l^2) = sqrt(3)/2.
	want := math.Sqrt(3) / 2
	if math.Abs(bulk[0]-want) > 1e-12 {
		t.Fatalf("right triangle quality = %g, want %g", bulk[0], want)
	}
}

func TestRemeshReturnsCode(t *testing.T) {
	ctx := context.Background()
	b, e, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	if err := b.SetRealParam(ctx, h, DPHMax, 0.4); err != nil {
		t.Fatalf("hmax: %v", err)
	}
	code, err := b.Remesh(ctx, h)
	if err != nil {
		t.Fatalf("remesh: %v", err)
	}
	if code != 0 {
		t.Fatalf("remesh code %d", code)
	}

	sizes, err := b.GetMeshSize(ctx, h)
	if err != nil {
		t.Fatalf("get mesh size: %v", err)
	}
	if sizes.Vertices <= 4 {
		t.Fatalf("remesh did not refine: %d vertices", sizes.Vertices)
	}

	e.ForceRemeshCode(2)
	code, err = b.Remesh(ctx, h)
	if err != nil || code != 2 {
		t.Fatalf("forced code = %d, err=%v", code, err)
	}
}

func TestFileOps(t *testing.T) {
	ctx := context.Background()
	b, e, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	if err := b.SaveMesh(ctx, h, "out.mesh"); err != nil {
		t.Fatalf("save mesh: %v", err)
	}
	data, err := e.ReadFile("out.mesh")
	if err != nil || len(data) == 0 {
		t.Fatalf("saved mesh unreadable: %v", err)
	}

	h2, err := b.Init(ctx)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := b.LoadMesh(ctx, h2, "out.mesh"); err != nil {
		t.Fatalf("load mesh: %v", err)
	}
	sizes, err := b.GetMeshSize(ctx, h2)
	if err != nil {
		t.Fatalf("get mesh size: %v", err)
	}
	if sizes.Vertices != 4 || sizes.Cells != 2 {
		t.Fatalf("loaded sizes = %+v", sizes)
	}

	if err := b.LoadMesh(ctx, h, ""); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("empty name accepted: %v", err)
	}
}

func TestSolFileOps(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)
	uploadSquare(t, b, h)

	field := []float64{0.1, 0.2, 0.3, 0.4}
	if err := b.SetSolSize(ctx, h, SolAtVertices, 4, SolScalar); err != nil {
		t.Fatalf("set sol size: %v", err)
	}
	if err := b.SetScalarField(ctx, h, field); err != nil {
		t.Fatalf("set scalar field: %v", err)
	}
	if err := b.SaveSol(ctx, h, "out.sol"); err != nil {
		t.Fatalf("save sol: %v", err)
	}

	h2, err := b.Init(ctx)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := b.LoadSol(ctx, h2, "out.sol"); err != nil {
		t.Fatalf("load sol: %v", err)
	}
	got, err := b.GetScalarField(ctx, h2)
	if err != nil {
		t.Fatalf("get scalar field: %v", err)
	}
	if len(got) != len(field) {
		t.Fatalf("got %d values, want %d", len(got), len(field))
	}
	for i, v := range field {
		if got[i] != v {
			t.Fatalf("value %d = %g, want %g", i, got[i], v)
		}
	}
}

func TestZeroElementGetterReturnsEmpty(t *testing.T) {
	// A mesh with no boundary elements comes back as an empty slice,
	// not an error: the engine answers with a null pointer and count 0.
	ctx := context.Background()
	b, e, h := newTestBinding(t, mmgwasm.Kind2D)

	if err := b.SetMeshSize(ctx, h, Sizes{Vertices: 4, Cells: 2}); err != nil {
		t.Fatalf("set mesh size: %v", err)
	}
	if err := b.SetVertices(ctx, h, squareVerts, nil); err != nil {
		t.Fatalf("set vertices: %v", err)
	}
	if err := b.SetCells(ctx, h, squareTris, nil); err != nil {
		t.Fatalf("set cells: %v", err)
	}

	edges, err := b.GetBoundary(ctx, h)
	if err != nil {
		t.Fatalf("get boundary: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("got %d boundary indices, want none", len(edges))
	}
	if n := e.LiveAllocations(); n != 0 {
		t.Fatalf("%d allocations leaked by empty getter", n)
	}
}

func TestSetBoundaryElement(t *testing.T) {
	ctx := context.Background()
	b, _, h := newTestBinding(t, mmgwasm.Kind2D)

	if err := b.SetMeshSize(ctx, h, Sizes{Vertices: 4, Cells: 2, Boundary: 4}); err != nil {
		t.Fatalf("set mesh size: %v", err)
	}
	if err := b.SetVertices(ctx, h, squareVerts, nil); err != nil {
		t.Fatalf("set vertices: %v", err)
	}
	if err := b.SetCells(ctx, h, squareTris, nil); err != nil {
		t.Fatalf("set cells: %v", err)
	}
	for i := 0; i < 4; i++ {
		edge := squareEdges[i*2 : i*2+2]
		if err := b.SetBoundaryElement(ctx, h, edge, 0, i+1); err != nil {
			t.Fatalf("set edge %d: %v", i+1, err)
		}
	}

	got, err := b.GetBoundary(ctx, h)
	if err != nil {
		t.Fatalf("get boundary: %v", err)
	}
	for i, v := range squareEdges {
		if got[i] != v {
			t.Fatalf("edge index %d = %d, want %d", i, got[i], v)
		}
	}

	err = b.SetBoundaryElement(ctx, h, []int32{1, 2, 3}, 0, 1)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("wrong arity accepted: %v", err)
	}
	err = b.SetBoundaryElement(ctx, h, []int32{1, 2}, 0, 0)
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("0-indexed position accepted: %v", err)
	}
}
