package sizing

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

// Constraint is one local refinement region with its target edge length.
type Constraint struct {
	size float64
	dim  int
	s3   sdf.SDF3
	s2   sdf.SDF2
	desc string
}

// Size returns the target edge length inside the region.
func (c *Constraint) Size() float64 { return c.size }

// Dim returns the spatial dimension the region lives in (2 or 3).
func (c *Constraint) Dim() int { return c.dim }

func (c *Constraint) String() string { return c.desc }

// Contains reports whether the point is inside the region. pt must hold
// Dim() coordinates.
func (c *Constraint) Contains(pt []float64) bool {
	if c.dim == 2 {
		return c.s2.Evaluate(v2.Vec{X: pt[0], Y: pt[1]}) <= 0
	}
	return c.s3.Evaluate(v3.Vec{X: pt[0], Y: pt[1], Z: pt[2]}) <= 0
}

// Sphere builds a spherical refinement region around center.
func Sphere(center [3]float64, radius, size float64) (*Constraint, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "radius",
			"sphere radius %g is not positive", radius)
	}
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, errors.New(errors.PhaseRemesh, errors.KindValidation).
			Cause(err).Detail("sphere region").Build()
	}
	s = sdf.Transform3D(s, sdf.Translate3d(v3.Vec{X: center[0], Y: center[1], Z: center[2]}))
	return &Constraint{
		size: size,
		dim:  3,
		s3:   s,
		desc: fmt.Sprintf("sphere(c=%v r=%g size=%g)", center, radius, size),
	}, nil
}

// Box builds an axis-aligned box refinement region spanning [min, max].
func Box(min, max [3]float64, size float64) (*Constraint, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	for i := 0; i < 3; i++ {
		if min[i] >= max[i] {
			return nil, errors.Validation(errors.PhaseRemesh, "box",
				"min %g is not below max %g on axis %d", min[i], max[i], i)
		}
	}
	ext := v3.Vec{X: max[0] - min[0], Y: max[1] - min[1], Z: max[2] - min[2]}
	s, err := sdf.Box3D(ext, 0)
	if err != nil {
		return nil, errors.New(errors.PhaseRemesh, errors.KindValidation).
			Cause(err).Detail("box region").Build()
	}
	// Box3D centers the box at the origin; shift to the midpoint.
	mid := v3.Vec{
		X: (min[0] + max[0]) / 2,
		Y: (min[1] + max[1]) / 2,
		Z: (min[2] + max[2]) / 2,
	}
	s = sdf.Transform3D(s, sdf.Translate3d(mid))
	return &Constraint{
		size: size,
		dim:  3,
		s3:   s,
		desc: fmt.Sprintf("box(min=%v max=%v size=%g)", min, max, size),
	}, nil
}

// Cylinder builds a cylindrical refinement region. center is the midpoint
// of the axis segment, axis its direction (need not be normalized).
func Cylinder(center, axis [3]float64, radius, height, size float64) (*Constraint, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "radius",
			"cylinder radius %g is not positive", radius)
	}
	if height <= 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "height",
			"cylinder height %g is not positive", height)
	}
	norm := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if norm == 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "axis",
			"cylinder axis is the zero vector")
	}
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, errors.New(errors.PhaseRemesh, errors.KindValidation).
			Cause(err).Detail("cylinder region").Build()
	}
	// Cylinder3D runs along Z; rotate Z onto the requested axis, then
	// translate to the midpoint.
	theta := math.Acos(axis[2] / norm)
	phi := math.Atan2(axis[1], axis[0])
	m := sdf.Translate3d(v3.Vec{X: center[0], Y: center[1], Z: center[2]}).
		Mul(sdf.RotateZ(phi)).
		Mul(sdf.RotateY(theta))
	s = sdf.Transform3D(s, m)
	return &Constraint{
		size: size,
		dim:  3,
		s3:   s,
		desc: fmt.Sprintf("cylinder(c=%v axis=%v r=%g h=%g size=%g)", center, axis, radius, height, size),
	}, nil
}

// Circle builds a circular refinement region for planar meshes.
func Circle(center [2]float64, radius, size float64) (*Constraint, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "radius",
			"circle radius %g is not positive", radius)
	}
	s, err := sdf.Circle2D(radius)
	if err != nil {
		return nil, errors.New(errors.PhaseRemesh, errors.KindValidation).
			Cause(err).Detail("circle region").Build()
	}
	s = sdf.Transform2D(s, sdf.Translate2d(v2.Vec{X: center[0], Y: center[1]}))
	return &Constraint{
		size: size,
		dim:  2,
		s2:   s,
		desc: fmt.Sprintf("circle(c=%v r=%g size=%g)", center, radius, size),
	}, nil
}

func checkSize(size float64) error {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return errors.Validation(errors.PhaseRemesh, "size",
			"target size %g is not a positive finite value", size)
	}
	return nil
}

// Uniform returns a size field of n copies of v.
func Uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Rasterize samples every vertex against the constraint list and returns
// the per-vertex size field. coords is the flat coordinate array for
// kind's dimension; ambient supplies the value for vertices no constraint
// claims and must hold one entry per vertex. Constraints apply in order:
// where regions overlap, the last one containing a vertex wins.
func Rasterize(kind mmgwasm.Kind, coords, ambient []float64, constraints []*Constraint) ([]float64, error) {
	dim := kind.Dim()
	if len(coords) == 0 || len(coords)%dim != 0 {
		return nil, errors.Validation(errors.PhaseRemesh, "coords",
			"coordinate array length %d is not a positive multiple of %d", len(coords), dim)
	}
	nv := len(coords) / dim
	if len(ambient) != nv {
		return nil, errors.Validation(errors.PhaseRemesh, "ambient",
			"ambient field has %d entries for %d vertices", len(ambient), nv)
	}
	for i, c := range constraints {
		if c.dim != dim {
			return nil, errors.Validation(errors.PhaseRemesh, "constraints",
				"constraint %d (%s) is %d-dimensional, mesh is %d-dimensional", i, c, c.dim, dim)
		}
	}

	out := make([]float64, nv)
	copy(out, ambient)
	for _, c := range constraints {
		for i := 0; i < nv; i++ {
			if c.Contains(coords[i*dim : i*dim+dim]) {
				out[i] = c.size
			}
		}
	}
	return out, nil
}
