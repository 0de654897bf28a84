package mesh

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/binding"
	"github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/meshfmt"
	"github.com/mmgwasm/mmgwasm/sizing"
)

// MeshData is the flat input for mesh construction. Connectivity is
// 1-indexed; ref slices are optional and, when present, hold one tag per
// element.
type MeshData struct {
	Vertices     []float64
	VertexRefs   []int32
	Cells        []int32
	CellRefs     []int32
	Boundary     []int32
	BoundaryRefs []int32
}

// Option tweaks mesh construction.
type Option func(*buildConfig)

type buildConfig struct {
	kind    mmgwasm.Kind
	hasKind bool
}

// WithKind forces the mesh kind instead of detecting it from the data.
func WithKind(k mmgwasm.Kind) Option {
	return func(c *buildConfig) {
		c.kind = k
		c.hasKind = true
	}
}

// Mesh is one live engine handle plus the client-side state attached to
// it. Not safe for concurrent use.
type Mesh struct {
	ses    *Session
	kind   mmgwasm.Kind
	b      *binding.Binding
	handle int32

	nv int // vertex count at upload time

	vertexRefs   []int32
	cellRefs     []int32
	boundaryRefs []int32

	metric       []float64
	metricTensor []float64
	constraints  []*sizing.Constraint

	disposed bool
}

// NewMesh uploads data into a fresh engine handle. The kind is detected
// from the array shapes unless WithKind is given.
func NewMesh(ctx context.Context, ses *Session, data MeshData, opts ...Option) (*Mesh, error) {
	var cfg buildConfig
	for _, o := range opts {
		o(&cfg)
	}

	kind := cfg.kind
	if !cfg.hasKind {
		k, err := detectKind(data)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	p, err := ses.Pool(ctx, kind)
	if err != nil {
		return nil, err
	}
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	b := ses.Binding(kind)
	m := &Mesh{
		ses:          ses,
		kind:         kind,
		b:            b,
		handle:       h,
		nv:           len(data.Vertices) / kind.Dim(),
		vertexRefs:   cloneInt32(data.VertexRefs),
		cellRefs:     cloneInt32(data.CellRefs),
		boundaryRefs: cloneInt32(data.BoundaryRefs),
	}
	if err := m.upload(ctx, data); err != nil {
		p.Release(ctx, h)
		return nil, err
	}

	engine.Logger().Debug("mesh created",
		zap.String("kind", kind.String()),
		zap.Int32("handle", h),
		zap.Int("vertices", m.nv),
		zap.Int("cells", len(data.Cells)/kind.CellArity()))
	return m, nil
}

// LoadMesh parses a serialized buffer (text or binary, auto-detected)
// and uploads it into a fresh handle.
func LoadMesh(ctx context.Context, ses *Session, buf []byte, opts ...Option) (*Mesh, error) {
	d, _, err := meshfmt.Decode(buf)
	if err != nil {
		return nil, err
	}
	// Decoded kind is authoritative unless the caller overrides it.
	all := append([]Option{WithKind(d.Kind)}, opts...)
	return NewMesh(ctx, ses, MeshData{
		Vertices:     d.Vertices,
		VertexRefs:   d.VertexRefs,
		Cells:        d.Cells,
		CellRefs:     d.CellRefs,
		Boundary:     d.Boundary,
		BoundaryRefs: d.BoundaryRefs,
	}, all...)
}

func (m *Mesh) upload(ctx context.Context, data MeshData) error {
	sizes := binding.Sizes{
		Vertices: len(data.Vertices) / m.kind.Dim(),
		Cells:    len(data.Cells) / m.kind.CellArity(),
		Boundary: len(data.Boundary) / m.kind.BoundaryArity(),
	}
	if err := m.b.SetMeshSize(ctx, m.handle, sizes); err != nil {
		return err
	}
	if err := m.b.SetVertices(ctx, m.handle, data.Vertices, data.VertexRefs); err != nil {
		return err
	}
	if len(data.Cells) > 0 {
		if err := m.b.SetCells(ctx, m.handle, data.Cells, data.CellRefs); err != nil {
			return err
		}
	}
	if len(data.Boundary) > 0 {
		if err := m.b.SetBoundary(ctx, m.handle, data.Boundary, data.BoundaryRefs); err != nil {
			return err
		}
	}
	return nil
}

// detectKind infers the mesh kind from array shapes: stride-2 vertices
// mean a planar mesh, stride-3 vertices with arity-4 cells a volumetric
// one, stride-3 with arity-3 cells a surface. Ambiguous shapes require
// WithKind.
func detectKind(data MeshData) (mmgwasm.Kind, error) {
	if len(data.Vertices) == 0 {
		return 0, errors.Validation(errors.PhaseMesh, "vertices", "empty vertex array")
	}
	if len(data.Cells) == 0 {
		return 0, errors.Validation(errors.PhaseMesh, "cells",
			"empty cell array; kind detection needs connectivity (or pass WithKind)")
	}

	maxIdx := int32(0)
	for _, v := range data.Cells {
		if v > maxIdx {
			maxIdx = v
		}
	}

	fits := func(dim, arity int) bool {
		if len(data.Vertices)%dim != 0 || len(data.Cells)%arity != 0 {
			return false
		}
		return int(maxIdx) <= len(data.Vertices)/dim
	}

	var candidates []mmgwasm.Kind
	if fits(3, 4) {
		candidates = append(candidates, mmgwasm.Kind3D)
	}
	if fits(2, 3) {
		candidates = append(candidates, mmgwasm.Kind2D)
	}
	if fits(3, 3) {
		candidates = append(candidates, mmgwasm.KindSurface)
	}

	switch len(candidates) {
	case 0:
		return 0, errors.Validation(errors.PhaseMesh, "data",
			"array shapes (%d coords, %d cell indices) match no mesh kind",
			len(data.Vertices), len(data.Cells))
	case 1:
		return candidates[0], nil
	}
	return 0, errors.Validation(errors.PhaseMesh, "data",
		"array shapes are ambiguous between %v; pass WithKind", candidates)
}

// Kind returns the mesh kind.
func (m *Mesh) Kind() mmgwasm.Kind { return m.kind }

// Handle returns the raw engine handle. Exposed for the worker layer.
func (m *Mesh) Handle() int32 { return m.handle }

// Session returns the owning session.
func (m *Mesh) Session() *Session { return m.ses }

// Disposed reports whether the mesh has been released.
func (m *Mesh) Disposed() bool { return m.disposed }

func (m *Mesh) check() error {
	if m.disposed {
		return errors.Disposed("mesh")
	}
	return nil
}

// Counts reads the current entity counts from the engine.
func (m *Mesh) Counts(ctx context.Context) (binding.Sizes, error) {
	if err := m.check(); err != nil {
		return binding.Sizes{}, err
	}
	return m.b.GetMeshSize(ctx, m.handle)
}

// Vertices reads all vertex coordinates, flat, stride Kind().Dim().
func (m *Mesh) Vertices(ctx context.Context) ([]float64, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.b.GetVertices(ctx, m.handle)
}

// Cells reads all cell connectivity, flat, 1-indexed.
func (m *Mesh) Cells(ctx context.Context) ([]int32, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.b.GetCells(ctx, m.handle)
}

// Boundary reads all boundary connectivity, flat, 1-indexed.
func (m *Mesh) Boundary(ctx context.Context) ([]int32, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.b.GetBoundary(ctx, m.handle)
}

// VertexRefs returns the reference tags supplied at construction, or nil
// for meshes produced by Remesh. The engine does not hand tags back.
func (m *Mesh) VertexRefs() []int32 { return cloneInt32(m.vertexRefs) }

// CellRefs returns the cell reference tags supplied at construction.
func (m *Mesh) CellRefs() []int32 { return cloneInt32(m.cellRefs) }

// BoundaryRefs returns the boundary reference tags supplied at
// construction.
func (m *Mesh) BoundaryRefs() []int32 { return cloneInt32(m.boundaryRefs) }

// Quality returns the per-cell shape quality in [0,1].
func (m *Mesh) Quality(ctx context.Context) ([]float64, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.b.Qualities(ctx, m.handle)
}

// ElementQuality returns one cell's shape quality (1-indexed).
func (m *Mesh) ElementQuality(ctx context.Context, index int) (float64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.b.ElementQuality(ctx, m.handle, index)
}

// Export serializes the current engine-side mesh in the given format.
func (m *Mesh) Export(ctx context.Context, f meshfmt.Format) ([]byte, error) {
	d, err := m.Data(ctx)
	if err != nil {
		return nil, err
	}
	return meshfmt.Encode(d, f)
}

// Data reads the full mesh content back into a meshfmt.Data.
func (m *Mesh) Data(ctx context.Context) (*meshfmt.Data, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	verts, err := m.b.GetVertices(ctx, m.handle)
	if err != nil {
		return nil, err
	}
	cells, err := m.b.GetCells(ctx, m.handle)
	if err != nil {
		return nil, err
	}
	boundary, err := m.b.GetBoundary(ctx, m.handle)
	if err != nil {
		return nil, err
	}
	d := &meshfmt.Data{
		Kind:     m.kind,
		Vertices: verts,
		Cells:    cells,
		Boundary: boundary,
	}
	if len(m.vertexRefs) == d.VertexCount() {
		d.VertexRefs = cloneInt32(m.vertexRefs)
	}
	if len(m.cellRefs) == d.CellCount() {
		d.CellRefs = cloneInt32(m.cellRefs)
	}
	if len(m.boundaryRefs) == d.BoundaryCount() {
		d.BoundaryRefs = cloneInt32(m.boundaryRefs)
	}
	return d, nil
}

// SetMetric installs an explicit per-vertex target size field. Replaces
// any previous metric, scalar or tensor.
func (m *Mesh) SetMetric(values []float64) error {
	if err := m.check(); err != nil {
		return err
	}
	if len(values) != m.nv {
		return errors.Validation(errors.PhaseMesh, "metric",
			"got %d values for %d vertices", len(values), m.nv)
	}
	m.metric = cloneFloat64(values)
	m.metricTensor = nil
	return nil
}

// SetMetricTensor installs an anisotropic per-vertex metric, flat, with
// the kind's component count per vertex. Replaces any previous metric.
func (m *Mesh) SetMetricTensor(values []float64) error {
	if err := m.check(); err != nil {
		return err
	}
	comps := m.kind.TensorComponents()
	if len(values) != m.nv*comps {
		return errors.Validation(errors.PhaseMesh, "metricTensor",
			"got %d values, want %d vertices x %d components", len(values), m.nv, comps)
	}
	m.metricTensor = cloneFloat64(values)
	m.metric = nil
	return nil
}

// SetSizeSphere appends a spherical refinement region. Planar meshes use
// SetSizeCircle instead. Successful calls return the mesh for chaining;
// invalid geometry or dimensionality fails right here.
func (m *Mesh) SetSizeSphere(center [3]float64, radius, size float64) (*Mesh, error) {
	return m.addConstraint3(func() (*sizing.Constraint, error) {
		return sizing.Sphere(center, radius, size)
	})
}

// SetSizeBox appends an axis-aligned box refinement region.
func (m *Mesh) SetSizeBox(min, max [3]float64, size float64) (*Mesh, error) {
	return m.addConstraint3(func() (*sizing.Constraint, error) {
		return sizing.Box(min, max, size)
	})
}

// SetSizeCylinder appends a cylindrical refinement region.
func (m *Mesh) SetSizeCylinder(center, axis [3]float64, radius, height, size float64) (*Mesh, error) {
	return m.addConstraint3(func() (*sizing.Constraint, error) {
		return sizing.Cylinder(center, axis, radius, height, size)
	})
}

// SetSizeCircle appends a circular refinement region. Only valid on
// planar meshes.
func (m *Mesh) SetSizeCircle(center [2]float64, radius, size float64) (*Mesh, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.kind != mmgwasm.Kind2D {
		return nil, errors.Validation(errors.PhaseRemesh, "constraint",
			"circle region on a %s mesh", m.kind)
	}
	c, err := sizing.Circle(center, radius, size)
	if err != nil {
		return nil, err
	}
	m.constraints = append(m.constraints, c)
	return m, nil
}

func (m *Mesh) addConstraint3(build func() (*sizing.Constraint, error)) (*Mesh, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.kind == mmgwasm.Kind2D {
		return nil, errors.Validation(errors.PhaseRemesh, "constraint",
			"3-dimensional region on a planar mesh")
	}
	c, err := build()
	if err != nil {
		return nil, err
	}
	m.constraints = append(m.constraints, c)
	return m, nil
}

// ClearLocalSizes drops all refinement regions.
func (m *Mesh) ClearLocalSizes() {
	m.constraints = nil
}

// LocalSizeCount returns the number of attached refinement regions.
func (m *Mesh) LocalSizeCount() int { return len(m.constraints) }

// Dispose releases the handle back to its pool. Idempotent; every other
// operation fails with a Disposed error afterwards.
func (m *Mesh) Dispose(ctx context.Context) error {
	if m.disposed {
		return nil
	}
	m.disposed = true
	p, err := m.ses.Pool(ctx, m.kind)
	if err != nil {
		return err
	}
	return p.Release(ctx, m.handle)
}

func cloneInt32(s []int32) []int32 {
	if s == nil {
		return nil
	}
	out := make([]int32, len(s))
	copy(out, s)
	return out
}

func cloneFloat64(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
