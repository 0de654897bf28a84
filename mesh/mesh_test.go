package mesh

import (
	"context"
	"testing"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/enginetest"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/meshfmt"
)

func squareMesh() MeshData {
	return MeshData{
		Vertices: []float64{0, 0, 1, 0, 1, 1, 0, 1},
		Cells:    []int32{1, 2, 3, 1, 3, 4},
		Boundary: []int32{1, 2, 2, 3, 3, 4, 4, 1},
	}
}

func cubeMesh() MeshData {
	return MeshData{
		Vertices: []float64{
			0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0,
			0, 0, 1, 1, 0, 1, 1, 1, 1, 0, 1, 1,
		},
		Cells: []int32{
			1, 2, 3, 6,
			1, 3, 4, 8,
			1, 5, 6, 8,
			3, 6, 7, 8,
			1, 3, 6, 8,
		},
		Boundary: []int32{
			1, 2, 3, 1, 3, 4,
			5, 6, 7, 5, 7, 8,
			1, 2, 6, 1, 6, 5,
			2, 3, 7, 2, 7, 6,
			3, 4, 8, 3, 8, 7,
			4, 1, 5, 4, 5, 8,
		},
	}
}

// Closed tetrahedron surface: shapes fit several kinds, so tests pass
// WithKind explicitly.
func tetraSurfaceMesh() MeshData {
	return MeshData{
		Vertices: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1},
		Cells:    []int32{1, 2, 3, 1, 2, 4, 1, 3, 4, 2, 3, 4},
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	ses := NewSession(enginetest.New())
	t.Cleanup(func() { ses.Close(context.Background()) })
	return ses
}

func TestKindDetection(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("square: %v", err)
	}
	if m.Kind() != mmgwasm.Kind2D {
		t.Fatalf("square kind = %v", m.Kind())
	}

	m3, err := NewMesh(ctx, ses, cubeMesh())
	if err != nil {
		t.Fatalf("cube: %v", err)
	}
	if m3.Kind() != mmgwasm.Kind3D {
		t.Fatalf("cube kind = %v", m3.Kind())
	}
}

func TestKindDetectionAmbiguity(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	// 12 coordinates and 12 cell indices fit both a planar and a
	// volumetric reading.
	_, err := NewMesh(ctx, ses, tetraSurfaceMesh())
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("ambiguous shapes accepted: %v", err)
	}

	m, err := NewMesh(ctx, ses, tetraSurfaceMesh(), WithKind(mmgwasm.KindSurface))
	if err != nil {
		t.Fatalf("explicit kind rejected: %v", err)
	}
	if m.Kind() != mmgwasm.KindSurface {
		t.Fatalf("kind = %v", m.Kind())
	}
}

func TestCountsAndAccessors(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	counts, err := m.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Vertices != 4 || counts.Cells != 2 || counts.Boundary != 4 {
		t.Fatalf("counts = %+v", counts)
	}

	verts, err := m.Vertices(ctx)
	if err != nil || len(verts) != 8 {
		t.Fatalf("vertices len=%d err=%v", len(verts), err)
	}
	cells, err := m.Cells(ctx)
	if err != nil || len(cells) != 6 {
		t.Fatalf("cells len=%d err=%v", len(cells), err)
	}
}

func TestDisposeSemantics(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	p, err := ses.Pool(ctx, mmgwasm.Kind2D)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	liveBefore := p.Live()

	if err := m.Dispose(ctx); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if p.Live() != liveBefore-1 {
		t.Fatalf("handle not returned to pool")
	}

	// Idempotent.
	if err := m.Dispose(ctx); err != nil {
		t.Fatalf("second dispose: %v", err)
	}

	if _, err := m.Vertices(ctx); !errors.IsKind(err, errors.KindDisposed) {
		t.Fatalf("want disposed error, got %v", err)
	}
	if _, err := m.Remesh(ctx, nil); !errors.IsKind(err, errors.KindDisposed) {
		t.Fatalf("want disposed error from remesh, got %v", err)
	}
}

func TestRemeshLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	res, err := m.Remesh(ctx, &Options{Hmax: 0.4})
	if err != nil {
		t.Fatalf("remesh: %v", err)
	}
	if !res.Success || res.Mesh == nil {
		t.Fatalf("remesh not successful: %+v", res)
	}

	srcCounts, err := m.Counts(ctx)
	if err != nil {
		t.Fatalf("source counts: %v", err)
	}
	if srcCounts.Vertices != 4 || srcCounts.Cells != 2 {
		t.Fatalf("source mutated: %+v", srcCounts)
	}

	if res.Counts.Vertices <= 4 {
		t.Fatalf("result not refined: %+v", res.Counts)
	}
	if res.Inserted != res.Counts.Vertices-4 {
		t.Fatalf("inserted = %d, want %d", res.Inserted, res.Counts.Vertices-4)
	}
	if res.Mesh.Kind() != m.Kind() {
		t.Fatalf("result kind changed")
	}
}

func TestRemeshMonotoneInHmax(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	coarse, err := m.Remesh(ctx, &Options{Hmax: 0.8})
	if err != nil {
		t.Fatalf("coarse remesh: %v", err)
	}
	fine, err := m.Remesh(ctx, &Options{Hmax: 0.2})
	if err != nil {
		t.Fatalf("fine remesh: %v", err)
	}

	if fine.Counts.Vertices < coarse.Counts.Vertices {
		t.Fatalf("smaller hmax gave fewer vertices: %d < %d",
			fine.Counts.Vertices, coarse.Counts.Vertices)
	}
}

func TestRemeshCube(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, cubeMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	res, err := m.Remesh(ctx, &Options{Hmax: 0.9})
	if err != nil {
		t.Fatalf("remesh: %v", err)
	}
	if !res.Success {
		t.Fatalf("remesh failed: %+v", res.Warnings)
	}
	if res.Counts.Vertices <= 8 {
		t.Fatalf("cube not refined: %+v", res.Counts)
	}
	if res.QualityAfter < 0 || res.QualityAfter > 1 {
		t.Fatalf("quality %g outside [0,1]", res.QualityAfter)
	}
}

func TestRemeshQualityBounds(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	res, err := m.Remesh(ctx, &Options{Hmax: 0.3})
	if err != nil {
		t.Fatalf("remesh: %v", err)
	}

	if res.QualityBefore <= 0 || res.QualityBefore > 1 {
		t.Fatalf("quality before = %g", res.QualityBefore)
	}
	quals, err := res.Mesh.Quality(ctx)
	if err != nil {
		t.Fatalf("qualities: %v", err)
	}
	for i, q := range quals {
		if q < 0 || q > 1 {
			t.Fatalf("cell %d quality %g outside [0,1]", i, q)
		}
	}
}

func TestRemeshStrongFailure(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	ses := NewSession(eng)
	defer ses.Close(ctx)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	p, err := ses.Pool(ctx, mmgwasm.Kind2D)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	liveBefore := p.Live()

	eng.ForceRemeshCode(2)
	res, err := m.Remesh(ctx, nil)
	if err != nil {
		t.Fatalf("strong failure must not be an error: %v", err)
	}
	if res.Success || res.Mesh != nil {
		t.Fatalf("result = %+v, want failure without mesh", res)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("no warning attached to failure")
	}
	// The scratch handle must not leak.
	if p.Live() != liveBefore {
		t.Fatalf("handle leaked on failure: live %d -> %d", liveBefore, p.Live())
	}
}

func TestOptionsValidation(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	cases := []*Options{
		{Hmax: -1},
		{Hmin: 0.5, Hmax: 0.1},
		{Hgrad: 0.5},
		{AngleDetection: 270},
	}
	for i, opts := range cases {
		if _, err := m.Remesh(ctx, opts); !errors.IsKind(err, errors.KindValidation) {
			t.Fatalf("case %d: invalid options accepted: %v", i, err)
		}
	}
}

func TestConstraintChaining(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	m2, err := m.SetSizeCircle([2]float64{0, 0}, 0.5, 0.1)
	if err != nil {
		t.Fatalf("first circle: %v", err)
	}
	if _, err := m2.SetSizeCircle([2]float64{1, 1}, 0.5, 0.2); err != nil {
		t.Fatalf("second circle: %v", err)
	}
	if m.LocalSizeCount() != 2 {
		t.Fatalf("constraint count = %d, want 2", m.LocalSizeCount())
	}

	res, err := m.Remesh(ctx, &Options{Hmax: 0.8})
	if err != nil {
		t.Fatalf("remesh with constraints: %v", err)
	}
	if !res.Success {
		t.Fatalf("remesh failed: %+v", res.Warnings)
	}

	m.ClearLocalSizes()
	if m.LocalSizeCount() != 0 {
		t.Fatal("constraints not cleared")
	}
}

func TestConstraintDimensionality(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m2, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("square: %v", err)
	}
	// Mismatched regions fail the setter call itself, not a later remesh.
	if _, err := m2.SetSizeSphere([3]float64{0, 0, 0}, 0.5, 0.1); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("sphere on planar mesh accepted: %v", err)
	}
	if m2.LocalSizeCount() != 0 {
		t.Fatalf("rejected constraint recorded, count = %d", m2.LocalSizeCount())
	}
	if _, err := m2.Remesh(ctx, &Options{Hmax: 0.8}); err != nil {
		t.Fatalf("remesh after rejected constraint: %v", err)
	}

	m3, err := NewMesh(ctx, ses, cubeMesh())
	if err != nil {
		t.Fatalf("cube: %v", err)
	}
	if _, err := m3.SetSizeCircle([2]float64{0, 0}, 0.5, 0.1); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("circle on volumetric mesh accepted: %v", err)
	}
	if _, err := m3.SetSizeSphere([3]float64{0.5, 0.5, 0.5}, 0.4, 0.3); err != nil {
		t.Fatalf("valid sphere rejected: %v", err)
	}
	if _, err := m3.Remesh(ctx, &Options{Hmax: 0.9}); err != nil {
		t.Fatalf("remesh with sphere: %v", err)
	}
}

func TestMetricValidation(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	if err := m.SetMetric([]float64{1, 2}); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("short metric accepted: %v", err)
	}
	if err := m.SetMetric([]float64{0.5, 0.5, 0.5, 0.5}); err != nil {
		t.Fatalf("metric rejected: %v", err)
	}

	// Tensor is 3 components per vertex on planar meshes.
	if err := m.SetMetricTensor(make([]float64, 4*3)); err != nil {
		t.Fatalf("tensor rejected: %v", err)
	}
	if _, err := m.SetSizeCircle([2]float64{0, 0}, 0.5, 0.1); err != nil {
		t.Fatalf("circle rejected: %v", err)
	}
	if _, err := m.Remesh(ctx, nil); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("tensor metric with regions accepted: %v", err)
	}
}

func TestSurfaceWithoutBoundaryEdges(t *testing.T) {
	// A closed surface has no boundary edges; reading them back must
	// yield an empty result, and remeshing must work end to end.
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, tetraSurfaceMesh(), WithKind(mmgwasm.KindSurface))
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	edges, err := m.Boundary(ctx)
	if err != nil {
		t.Fatalf("boundary: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("closed surface reported %d boundary indices", len(edges))
	}

	d, err := m.Data(ctx)
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if d.BoundaryCount() != 0 {
		t.Fatalf("data boundary count = %d", d.BoundaryCount())
	}

	res, err := m.Remesh(ctx, &Options{Hmax: 0.8})
	if err != nil {
		t.Fatalf("remesh: %v", err)
	}
	if !res.Success || res.Mesh == nil {
		t.Fatalf("remesh failed: %+v", res.Warnings)
	}
	if res.Counts.Vertices <= 4 {
		t.Fatalf("surface not refined: %+v", res.Counts)
	}
	if edges, err := res.Mesh.Boundary(ctx); err != nil || len(edges) != 0 {
		t.Fatalf("result boundary len=%d err=%v", len(edges), err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	ses := newTestSession(t)

	m, err := NewMesh(ctx, ses, squareMesh())
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}

	for _, format := range []meshfmt.Format{meshfmt.FormatText, meshfmt.FormatBinary} {
		buf, err := m.Export(ctx, format)
		if err != nil {
			t.Fatalf("export %v: %v", format, err)
		}
		m2, err := LoadMesh(ctx, ses, buf)
		if err != nil {
			t.Fatalf("load %v: %v", format, err)
		}
		if m2.Kind() != mmgwasm.Kind2D {
			t.Fatalf("reloaded kind = %v", m2.Kind())
		}
		counts, err := m2.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if counts.Vertices != 4 || counts.Cells != 2 || counts.Boundary != 4 {
			t.Fatalf("%v round trip counts = %+v", format, counts)
		}
	}
}

func TestSessionClose(t *testing.T) {
	ctx := context.Background()
	ses := NewSession(enginetest.New())

	if _, err := NewMesh(ctx, ses, squareMesh()); err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	if err := ses.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ses.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := NewMesh(ctx, ses, squareMesh()); !errors.IsKind(err, errors.KindDisposed) {
		t.Fatalf("mesh created on closed session: %v", err)
	}
}
