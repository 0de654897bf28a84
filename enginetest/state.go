package enginetest

import (
	"math"

	"github.com/mmgwasm/mmgwasm"
)

// meshState is the engine-side content of one handle.
type meshState struct {
	kind mmgwasm.Kind

	np, nt, na int // declared entity counts

	verts        []float64
	vertRefs     []int32
	cells        []int32
	cellRefs     []int32
	boundary     []int32
	boundaryRefs []int32

	solEntity int32
	solCount  int32
	solType   int32
	sol       []float64

	iparams map[int32]int32
	dparams map[int32]float64
}

func newMeshState(kind mmgwasm.Kind) *meshState {
	return &meshState{
		kind:    kind,
		iparams: make(map[int32]int32),
		dparams: make(map[int32]float64),
	}
}

// Numeric parameter keys per engine family. These mirror the enums the
// real engine compiles in.
var hminKeys = map[mmgwasm.Kind]int32{
	mmgwasm.Kind2D: 23, mmgwasm.Kind3D: 25, mmgwasm.KindSurface: 18,
}

var hmaxKeys = map[mmgwasm.Kind]int32{
	mmgwasm.Kind2D: 24, mmgwasm.Kind3D: 26, mmgwasm.KindSurface: 19,
}

var noInsertKeys = map[mmgwasm.Kind]int32{
	mmgwasm.Kind2D: 10, mmgwasm.Kind3D: 10, mmgwasm.KindSurface: 9,
}

func (st *meshState) hmin() float64 { return st.dparams[hminKeys[st.kind]] }
func (st *meshState) hmax() float64 { return st.dparams[hmaxKeys[st.kind]] }
func (st *meshState) noInsert() bool {
	return st.iparams[noInsertKeys[st.kind]] != 0
}

// maxSubdivisionRounds bounds memory growth on tiny hmax values.
const maxSubdivisionRounds = 5

// remesh adapts by uniform longest-edge subdivision until the longest
// cell edge drops under the target size. Returns the engine code.
func (st *meshState) remesh() int {
	if len(st.verts) == 0 || len(st.cells) == 0 {
		return 2
	}

	target := st.hmax()
	if target <= 0 && len(st.sol) > 0 && st.solType == 1 {
		target = math.Inf(1)
		for _, v := range st.sol {
			if v > 0 && v < target {
				target = v
			}
		}
		if math.IsInf(target, 1) {
			target = 0
		}
	}
	if target <= 0 || st.noInsert() {
		return 0
	}

	hmin := st.hmin()
	for round := 0; round < maxSubdivisionRounds; round++ {
		longest := st.longestEdge()
		if longest <= target {
			break
		}
		if hmin > 0 && longest/2 < hmin {
			break
		}
		st.subdivide()
	}

	// Vertex attachment of the old field no longer holds.
	st.sol = nil
	st.solCount = 0

	st.np = len(st.verts) / st.kind.Dim()
	st.nt = len(st.cells) / st.kind.CellArity()
	st.na = len(st.boundary) / st.kind.BoundaryArity()
	return 0
}

func (st *meshState) longestEdge() float64 {
	dim := st.kind.Dim()
	arity := st.kind.CellArity()
	longest := 0.0
	for c := 0; c+arity <= len(st.cells); c += arity {
		for i := 0; i < arity; i++ {
			for j := i + 1; j < arity; j++ {
				l := st.edgeLen(dim, st.cells[c+i], st.cells[c+j])
				if l > longest {
					longest = l
				}
			}
		}
	}
	return longest
}

func (st *meshState) edgeLen(dim int, a, b int32) float64 {
	ai := (int(a) - 1) * dim
	bi := (int(b) - 1) * dim
	var sum float64
	for k := 0; k < dim; k++ {
		d := st.verts[ai+k] - st.verts[bi+k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// subdivide splits every cell uniformly: triangles into 4, tetrahedra
// into 8 (Bey's red refinement). Boundary elements split in step.
func (st *meshState) subdivide() {
	dim := st.kind.Dim()
	mids := make(map[[2]int32]int32)

	mid := func(a, b int32) int32 {
		key := [2]int32{a, b}
		if a > b {
			key = [2]int32{b, a}
		}
		if m, ok := mids[key]; ok {
			return m
		}
		ai := (int(a) - 1) * dim
		bi := (int(b) - 1) * dim
		for k := 0; k < dim; k++ {
			st.verts = append(st.verts, (st.verts[ai+k]+st.verts[bi+k])/2)
		}
		if st.vertRefs != nil {
			st.vertRefs = append(st.vertRefs, 0)
		}
		m := int32(len(st.verts) / dim)
		mids[key] = m
		return m
	}

	if st.kind == mmgwasm.Kind3D {
		st.cells, st.cellRefs = subdivideTets(st.cells, st.cellRefs, mid)
		st.boundary, st.boundaryRefs = subdivideTris(st.boundary, st.boundaryRefs, mid)
	} else {
		st.cells, st.cellRefs = subdivideTris(st.cells, st.cellRefs, mid)
		st.boundary, st.boundaryRefs = subdivideEdges(st.boundary, st.boundaryRefs, mid)
	}
}

func subdivideTris(conn, refs []int32, mid func(a, b int32) int32) ([]int32, []int32) {
	out := make([]int32, 0, len(conn)*4)
	var outRefs []int32
	if refs != nil {
		outRefs = make([]int32, 0, len(refs)*4)
	}
	for c := 0; c+3 <= len(conn); c += 3 {
		v0, v1, v2 := conn[c], conn[c+1], conn[c+2]
		m01, m12, m02 := mid(v0, v1), mid(v1, v2), mid(v0, v2)
		out = append(out,
			v0, m01, m02,
			m01, v1, m12,
			m02, m12, v2,
			m01, m12, m02,
		)
		if refs != nil {
			r := refs[c/3]
			outRefs = append(outRefs, r, r, r, r)
		}
	}
	return out, outRefs
}

func subdivideTets(conn, refs []int32, mid func(a, b int32) int32) ([]int32, []int32) {
	out := make([]int32, 0, len(conn)*8)
	var outRefs []int32
	if refs != nil {
		outRefs = make([]int32, 0, len(refs)*8)
	}
	for c := 0; c+4 <= len(conn); c += 4 {
		v0, v1, v2, v3 := conn[c], conn[c+1], conn[c+2], conn[c+3]
		m01, m02, m03 := mid(v0, v1), mid(v0, v2), mid(v0, v3)
		m12, m13, m23 := mid(v1, v2), mid(v1, v3), mid(v2, v3)
		out = append(out,
			v0, m01, m02, m03,
			m01, v1, m12, m13,
			m02, m12, v2, m23,
			m03, m13, m23, v3,
			m01, m02, m03, m13,
			m01, m02, m12, m13,
			m02, m03, m13, m23,
			m02, m12, m13, m23,
		)
		if refs != nil {
			r := refs[c/4]
			for i := 0; i < 8; i++ {
				outRefs = append(outRefs, r)
			}
		}
	}
	return out, outRefs
}

func subdivideEdges(conn, refs []int32, mid func(a, b int32) int32) ([]int32, []int32) {
	out := make([]int32, 0, len(conn)*2)
	var outRefs []int32
	if refs != nil {
		outRefs = make([]int32, 0, len(refs)*2)
	}
	for c := 0; c+2 <= len(conn); c += 2 {
		v0, v1 := conn[c], conn[c+1]
		m := mid(v0, v1)
		out = append(out, v0, m, m, v1)
		if refs != nil {
			r := refs[c/2]
			outRefs = append(outRefs, r, r)
		}
	}
	return out, outRefs
}

// cellQuality returns the normalized shape measure of cell i (0-based):
// 4*sqrt(3)*A / sum(l^2) for triangles, 6*sqrt(2)*V / l_rms^3 for
// tetrahedra. 1 for ideal elements, 0 for degenerate ones.
func (st *meshState) cellQuality(i int) float64 {
	dim := st.kind.Dim()
	arity := st.kind.CellArity()
	c := i * arity
	if c < 0 || c+arity > len(st.cells) {
		return 0
	}

	pt := func(v int32) []float64 {
		base := (int(v) - 1) * dim
		return st.verts[base : base+dim]
	}

	if arity == 3 {
		return triQuality(pt(st.cells[c]), pt(st.cells[c+1]), pt(st.cells[c+2]))
	}
	return tetQuality(pt(st.cells[c]), pt(st.cells[c+1]), pt(st.cells[c+2]), pt(st.cells[c+3]))
}

func triQuality(p0, p1, p2 []float64) float64 {
	a := sub3(p1, p0)
	b := sub3(p2, p0)
	c := sub3(p2, p1)

	cr := cross(a, b)
	area := math.Sqrt(dot(cr, cr)) / 2
	den := dot(a, a) + dot(b, b) + dot(c, c)
	if den == 0 {
		return 0
	}
	q := 4 * math.Sqrt(3) * area / den
	return clamp01(q)
}

func tetQuality(p0, p1, p2, p3 []float64) float64 {
	a := sub3(p1, p0)
	b := sub3(p2, p0)
	c := sub3(p3, p0)

	vol := math.Abs(dot(a, cross(b, c))) / 6
	d := sub3(p2, p1)
	e := sub3(p3, p1)
	f := sub3(p3, p2)
	lsum := dot(a, a) + dot(b, b) + dot(c, c) + dot(d, d) + dot(e, e) + dot(f, f)
	if lsum == 0 {
		return 0
	}
	lrms := math.Sqrt(lsum / 6)
	q := 6 * math.Sqrt2 * vol / (lrms * lrms * lrms)
	return clamp01(q)
}

// sub3 lifts 2-component points into 3-space so one cross product
// serves planar and embedded triangles alike.
func sub3(a, b []float64) [3]float64 {
	var out [3]float64
	for k := range a {
		out[k] = a[k] - b[k]
	}
	return out
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
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
