// Package sizing turns geometric refinement regions into per-vertex
// target edge lengths.
//
// A Constraint pairs a signed-distance region (sphere, box, cylinder in
// three dimensions, circle in two) with a target size. Rasterize samples
// every mesh vertex against the constraint list and produces the scalar
// size field the remesher consumes. When regions overlap, the last
// constraint applied to a vertex wins; there is no blending.
package sizing
