package mmgwasm

import "fmt"

// Kind identifies one of the three mesh families the engine supports.
type Kind uint8

const (
	// Kind2D is a planar triangle mesh.
	Kind2D Kind = iota
	// Kind3D is a volumetric tetrahedral mesh.
	Kind3D
	// KindSurface is a triangle mesh on a 2-manifold embedded in 3-D.
	KindSurface
)

// Dim returns the vertex stride: coordinates per vertex.
func (k Kind) Dim() int {
	if k == Kind2D {
		return 2
	}
	return 3
}

// CellArity returns the vertex count per cell: 3 for triangles, 4 for
// tetrahedra.
func (k Kind) CellArity() int {
	if k == Kind3D {
		return 4
	}
	return 3
}

// BoundaryArity returns the vertex count per boundary element: edges for
// 2-D and surface meshes, triangles for volumetric meshes.
func (k Kind) BoundaryArity() int {
	if k == Kind3D {
		return 3
	}
	return 2
}

// TensorComponents returns the component count of a symmetric metric
// tensor for this kind: 3 in 2-D (m11, m12, m22), 6 otherwise.
func (k Kind) TensorComponents() int {
	if k == Kind2D {
		return 3
	}
	return 6
}

func (k Kind) String() string {
	switch k {
	case Kind2D:
		return "2d"
	case Kind3D:
		return "3d"
	case KindSurface:
		return "surface"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind converts a kind name ("2d", "3d", "surface") back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "2d":
		return Kind2D, nil
	case "3d":
		return Kind3D, nil
	case "surface":
		return KindSurface, nil
	}
	return 0, fmt.Errorf("unknown mesh kind %q", s)
}

// Kinds lists all mesh kinds in declaration order.
func Kinds() []Kind {
	return []Kind{Kind2D, Kind3D, KindSurface}
}
