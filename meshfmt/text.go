package meshfmt

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

func encodeText(d *Data) ([]byte, error) {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)

	fmt.Fprintln(w, "MeshVersionFormatted 2")
	fmt.Fprintf(w, "Dimension %d\n\n", d.Kind.Dim())

	dim := d.Kind.Dim()
	nv := d.VertexCount()
	fmt.Fprintf(w, "Vertices\n%d\n", nv)
	for i := 0; i < nv; i++ {
		for j := 0; j < dim; j++ {
			if j > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.FormatFloat(d.Vertices[i*dim+j], 'g', -1, 64))
		}
		fmt.Fprintf(w, " %d\n", refAt(d.VertexRefs, i))
	}

	writeConn := func(section string, conn []int32, refs []int32, arity int) {
		n := len(conn) / arity
		if n == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\n%d\n", section, n)
		for i := 0; i < n; i++ {
			for j := 0; j < arity; j++ {
				if j > 0 {
					w.WriteByte(' ')
				}
				fmt.Fprintf(w, "%d", conn[i*arity+j])
			}
			fmt.Fprintf(w, " %d\n", refAt(refs, i))
		}
	}

	switch d.Kind {
	case mmgwasm.Kind2D:
		writeConn("Triangles", d.Cells, d.CellRefs, 3)
		writeConn("Edges", d.Boundary, d.BoundaryRefs, 2)
	case mmgwasm.Kind3D:
		writeConn("Tetrahedra", d.Cells, d.CellRefs, 4)
		writeConn("Triangles", d.Boundary, d.BoundaryRefs, 3)
	case mmgwasm.KindSurface:
		writeConn("Triangles", d.Cells, d.CellRefs, 3)
		writeConn("Edges", d.Boundary, d.BoundaryRefs, 2)
	}

	fmt.Fprintln(w, "\nEnd")
	w.Flush()
	return b.Bytes(), nil
}

func refAt(refs []int32, i int) int32 {
	if refs == nil {
		return 0
	}
	return refs[i]
}

// textTokens splits a MEDIT buffer into whitespace-separated tokens,
// dropping # comments to end of line.
func textTokens(buf []byte) []string {
	var tokens []string
	for _, line := range strings.Split(string(buf), "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	return tokens
}

type textParser struct {
	tokens []string
	pos    int
}

func (p *textParser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, true
}

func (p *textParser) expectInt(what string) (int, error) {
	t, ok := p.next()
	if !ok {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("unexpected end of buffer reading %s", what).
			Build()
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("bad %s %q", what, t).
			Build()
	}
	return n, nil
}

func (p *textParser) expectFloat(what string) (float64, error) {
	t, ok := p.next()
	if !ok {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("unexpected end of buffer reading %s", what).
			Build()
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("bad %s %q", what, t).
			Build()
	}
	return v, nil
}

type textSections struct {
	dimension  int
	vertices   []float64
	vertexRefs []int32
	edges      []int32
	edgeRefs   []int32
	triangles  []int32
	triRefs    []int32
	tetrahedra []int32
	tetRefs    []int32
}

func parseText(buf []byte) (*textSections, error) {
	p := &textParser{tokens: textTokens(buf)}
	s := &textSections{}

	for {
		tok, ok := p.next()
		if !ok {
			break
		}
		switch tok {
		case "MeshVersionFormatted":
			if _, err := p.expectInt("version"); err != nil {
				return nil, err
			}
		case "Dimension":
			dim, err := p.expectInt("dimension")
			if err != nil {
				return nil, err
			}
			if dim != 2 && dim != 3 {
				return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
					Detail("unsupported dimension %d", dim).
					Build()
			}
			s.dimension = dim
		case "Vertices":
			n, err := p.expectInt("vertex count")
			if err != nil {
				return nil, err
			}
			if s.dimension == 0 {
				return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
					Detail("Vertices section before Dimension").
					Build()
			}
			s.vertices = make([]float64, 0, n*s.dimension)
			s.vertexRefs = make([]int32, 0, n)
			for i := 0; i < n; i++ {
				for j := 0; j < s.dimension; j++ {
					v, err := p.expectFloat("coordinate")
					if err != nil {
						return nil, err
					}
					s.vertices = append(s.vertices, v)
				}
				ref, err := p.expectInt("vertex ref")
				if err != nil {
					return nil, err
				}
				s.vertexRefs = append(s.vertexRefs, int32(ref))
			}
		case "Edges":
			conn, refs, err := p.parseConn(2)
			if err != nil {
				return nil, err
			}
			s.edges, s.edgeRefs = conn, refs
		case "Triangles":
			conn, refs, err := p.parseConn(3)
			if err != nil {
				return nil, err
			}
			s.triangles, s.triRefs = conn, refs
		case "Tetrahedra":
			conn, refs, err := p.parseConn(4)
			if err != nil {
				return nil, err
			}
			s.tetrahedra, s.tetRefs = conn, refs
		case "End":
			return s, nil
		case "Corners", "RequiredVertices", "Ridges", "RequiredEdges", "Quadrilaterals":
			// Sections the abstraction does not model; skip count + rows.
			n, err := p.expectInt("count")
			if err != nil {
				return nil, err
			}
			per := 1
			if tok == "Quadrilaterals" {
				per = 5
			}
			for i := 0; i < n*per; i++ {
				if _, ok := p.next(); !ok {
					return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
						Detail("truncated %s section", tok).
						Build()
				}
			}
		default:
			return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
				Detail("unexpected token %q", tok).
				Build()
		}
	}
	return s, nil
}

func (p *textParser) parseConn(arity int) ([]int32, []int32, error) {
	n, err := p.expectInt("element count")
	if err != nil {
		return nil, nil, err
	}
	conn := make([]int32, 0, n*arity)
	refs := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		for j := 0; j < arity; j++ {
			v, err := p.expectInt("index")
			if err != nil {
				return nil, nil, err
			}
			conn = append(conn, int32(v))
		}
		ref, err := p.expectInt("ref")
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, int32(ref))
	}
	return conn, refs, nil
}

func kindOf(s *textSections) (mmgwasm.Kind, error) {
	switch {
	case s.dimension == 2:
		return mmgwasm.Kind2D, nil
	case s.dimension == 3 && len(s.tetrahedra) > 0:
		return mmgwasm.Kind3D, nil
	case s.dimension == 3:
		return mmgwasm.KindSurface, nil
	}
	return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
		Detail("buffer has no Dimension marker").
		Build()
}

func decodeText(buf []byte) (*Data, error) {
	s, err := parseText(buf)
	if err != nil {
		return nil, err
	}
	kind, err := kindOf(s)
	if err != nil {
		return nil, err
	}

	d := &Data{
		Kind:       kind,
		Vertices:   s.vertices,
		VertexRefs: s.vertexRefs,
	}
	switch kind {
	case mmgwasm.Kind2D, mmgwasm.KindSurface:
		d.Cells, d.CellRefs = s.triangles, s.triRefs
		d.Boundary, d.BoundaryRefs = s.edges, s.edgeRefs
	case mmgwasm.Kind3D:
		d.Cells, d.CellRefs = s.tetrahedra, s.tetRefs
		d.Boundary, d.BoundaryRefs = s.triangles, s.triRefs
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func peekTextKind(buf []byte) (mmgwasm.Kind, error) {
	s, err := parseText(buf)
	if err != nil {
		return 0, err
	}
	return kindOf(s)
}
