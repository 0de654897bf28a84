package mmgwasm

import "testing"

func TestKindShapes(t *testing.T) {
	cases := []struct {
		kind                     Kind
		dim, cells, boundary, tc int
	}{
		{Kind2D, 2, 3, 2, 3},
		{Kind3D, 3, 4, 3, 6},
		{KindSurface, 3, 3, 2, 6},
	}
	for _, c := range cases {
		if c.kind.Dim() != c.dim {
			t.Errorf("%v dim = %d, want %d", c.kind, c.kind.Dim(), c.dim)
		}
		if c.kind.CellArity() != c.cells {
			t.Errorf("%v cell arity = %d, want %d", c.kind, c.kind.CellArity(), c.cells)
		}
		if c.kind.BoundaryArity() != c.boundary {
			t.Errorf("%v boundary arity = %d, want %d", c.kind, c.kind.BoundaryArity(), c.boundary)
		}
		if c.kind.TensorComponents() != c.tc {
			t.Errorf("%v tensor components = %d, want %d", c.kind, c.kind.TensorComponents(), c.tc)
		}
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		back, err := ParseKind(k.String())
		if err != nil || back != k {
			t.Fatalf("parse %q: got %v, err=%v", k.String(), back, err)
		}
	}
	if _, err := ParseKind("4d"); err == nil {
		t.Fatal("unknown kind parsed")
	}
}
