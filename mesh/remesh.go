package mesh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmgwasm/mmgwasm/binding"
	"github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/sizing"
)

// Result carries the outcome of one remesh run.
type Result struct {
	// Mesh is the adapted mesh on a fresh handle, nil when the engine
	// failed hard. The source mesh is never touched.
	Mesh *Mesh

	Counts  binding.Sizes
	Elapsed time.Duration

	// Mean cell quality in [0,1] before and after adaptation.
	QualityBefore float64
	QualityAfter  float64

	// Entity count deltas attributed to insertion and removal.
	Inserted int
	Removed  int
	Swapped  int
	Moved    int

	Success  bool
	Warnings []string
}

// Remesh runs the engine's adaptation on a copy of this mesh and
// returns the result as a new Mesh. The receiver is left untouched and
// stays valid. Engine-reported failure comes back as Success=false with
// warnings, not as an error; errors are reserved for broken preconditions
// and transport faults.
func (m *Mesh) Remesh(ctx context.Context, opts *Options) (*Result, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if m.metricTensor != nil && len(m.constraints) > 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "metric",
			"refinement regions cannot be combined with a tensor metric")
	}

	start := time.Now()

	snap, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	before, err := m.b.GetMeshSize(ctx, m.handle)
	if err != nil {
		return nil, err
	}
	qBefore, err := m.meanQuality(ctx, m.handle)
	if err != nil {
		return nil, err
	}

	p, err := m.ses.Pool(ctx, m.kind)
	if err != nil {
		return nil, err
	}
	h2, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Result, error) {
		p.Release(ctx, h2)
		return nil, err
	}

	next := &Mesh{
		ses:    m.ses,
		kind:   m.kind,
		b:      m.b,
		handle: h2,
		nv:     len(snap.Vertices) / m.kind.Dim(),
	}
	if err := next.upload(ctx, snap); err != nil {
		return fail(err)
	}
	if err := m.uploadSizeField(ctx, h2, snap.Vertices, opts); err != nil {
		return fail(err)
	}
	if err := m.applyOptions(ctx, h2, opts); err != nil {
		return fail(err)
	}

	code, err := m.b.Remesh(ctx, h2)
	if err != nil {
		return fail(err)
	}

	log := engine.Logger()
	if code == engine.CodeStrongFailure {
		p.Release(ctx, h2)
		log.Warn("remesh failed",
			zap.String("kind", m.kind.String()),
			zap.Int32("handle", m.handle),
			zap.Int("code", code))
		return &Result{
			QualityBefore: qBefore,
			Elapsed:       time.Since(start),
			Warnings:      []string{"engine reported a strong failure; no output mesh produced"},
		}, nil
	}

	after, err := next.Counts(ctx)
	if err != nil {
		return fail(err)
	}
	next.nv = after.Vertices
	qAfter, err := m.meanQuality(ctx, h2)
	if err != nil {
		return fail(err)
	}

	res := &Result{
		Mesh:          next,
		Counts:        after,
		Elapsed:       time.Since(start),
		QualityBefore: qBefore,
		QualityAfter:  qAfter,
		Success:       code == engine.CodeSuccess,
	}
	if d := after.Vertices - before.Vertices; d > 0 {
		res.Inserted = d
	} else {
		res.Removed = -d
	}
	if code == engine.CodeLowFailure {
		res.Warnings = []string{"engine reported a low failure; output mesh is usable but targets were not met"}
	}

	log.Info("remesh complete",
		zap.String("kind", m.kind.String()),
		zap.Int("verticesBefore", before.Vertices),
		zap.Int("verticesAfter", after.Vertices),
		zap.Float64("qualityBefore", qBefore),
		zap.Float64("qualityAfter", qAfter),
		zap.Bool("success", res.Success),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// snapshot reads the receiver's full content for upload into the work
// handle.
func (m *Mesh) snapshot(ctx context.Context) (MeshData, error) {
	verts, err := m.b.GetVertices(ctx, m.handle)
	if err != nil {
		return MeshData{}, err
	}
	cells, err := m.b.GetCells(ctx, m.handle)
	if err != nil {
		return MeshData{}, err
	}
	boundary, err := m.b.GetBoundary(ctx, m.handle)
	if err != nil {
		return MeshData{}, err
	}
	snap := MeshData{Vertices: verts, Cells: cells, Boundary: boundary}
	if len(m.vertexRefs)*m.kind.Dim() == len(verts) {
		snap.VertexRefs = m.vertexRefs
	}
	if len(m.cellRefs)*m.kind.CellArity() == len(cells) {
		snap.CellRefs = m.cellRefs
	}
	if len(m.boundaryRefs)*m.kind.BoundaryArity() == len(boundary) {
		snap.BoundaryRefs = m.boundaryRefs
	}
	return snap, nil
}

// uploadSizeField rasterizes the metric and refinement regions into a
// per-vertex solution on the work handle. No metric and no regions means
// no solution: the engine then works from hmin/hmax alone.
func (m *Mesh) uploadSizeField(ctx context.Context, h int32, coords []float64, opts *Options) error {
	nv := len(coords) / m.kind.Dim()

	if m.metricTensor != nil {
		if err := m.b.SetSolSize(ctx, h, binding.SolAtVertices, nv, binding.SolTensor); err != nil {
			return err
		}
		return m.b.SetTensorField(ctx, h, m.metricTensor)
	}
	if m.metric == nil && len(m.constraints) == 0 {
		return nil
	}

	ambient := m.metric
	if ambient == nil {
		ambient = sizing.Uniform(nv, m.ambientSize(coords, opts))
	}
	field, err := sizing.Rasterize(m.kind, coords, ambient, m.constraints)
	if err != nil {
		return err
	}
	if err := m.b.SetSolSize(ctx, h, binding.SolAtVertices, nv, binding.SolScalar); err != nil {
		return err
	}
	return m.b.SetScalarField(ctx, h, field)
}

// ambientSize picks the size for vertices no region claims: the hmax
// option when set, otherwise a tenth of the largest bounding-box extent.
func (m *Mesh) ambientSize(coords []float64, opts *Options) float64 {
	if opts != nil && opts.Hmax > 0 {
		return opts.Hmax
	}
	dim := m.kind.Dim()
	var ext float64
	for j := 0; j < dim; j++ {
		lo, hi := coords[j], coords[j]
		for i := dim + j; i < len(coords); i += dim {
			if coords[i] < lo {
				lo = coords[i]
			}
			if coords[i] > hi {
				hi = coords[i]
			}
		}
		if hi-lo > ext {
			ext = hi - lo
		}
	}
	if ext == 0 {
		ext = 1
	}
	return ext / 10
}

func (m *Mesh) applyOptions(ctx context.Context, h int32, opts *Options) error {
	if m.metricTensor != nil {
		if err := m.b.SetIntParam(ctx, h, binding.IPAnisoSize, 1); err != nil {
			return err
		}
	}
	if opts == nil {
		return nil
	}

	reals := []struct {
		p   binding.DParam
		v   float64
		set bool
	}{
		{binding.DPHMin, opts.Hmin, opts.Hmin > 0},
		{binding.DPHMax, opts.Hmax, opts.Hmax > 0},
		{binding.DPHausd, opts.Hausd, opts.Hausd > 0},
		{binding.DPHGrad, opts.Hgrad, opts.Hgrad > 0},
		{binding.DPAngleDetection, opts.AngleDetection, opts.AngleDetection > 0},
	}
	for _, r := range reals {
		if !r.set {
			continue
		}
		if err := m.b.SetRealParam(ctx, h, r.p, r.v); err != nil {
			return err
		}
	}

	ints := []struct {
		p   binding.IParam
		v   int
		set bool
	}{
		{binding.IPNoInsert, 1, opts.NoInsert},
		{binding.IPNoSwap, 1, opts.NoSwap},
		{binding.IPNoMove, 1, opts.NoMove},
		{binding.IPNoSurf, 1, opts.NoSurf},
		{binding.IPOptim, 1, opts.Optim},
		{binding.IPVerbose, opts.Verbose, opts.Verbose != 0},
		{binding.IPMem, opts.Memory, opts.Memory > 0},
	}
	for _, r := range ints {
		if !r.set {
			continue
		}
		if err := m.b.SetIntParam(ctx, h, r.p, r.v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mesh) meanQuality(ctx context.Context, h int32) (float64, error) {
	vals, err := m.b.Qualities(ctx, h)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), nil
}
