package enginetest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/meshfmt"
)

func (e *Engine) guestName(ptr uint64) (string, error) {
	path, err := e.readCString(uint32(ptr))
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(path, "/work/"), nil
}

func (e *Engine) readCString(ptr uint32) (string, error) {
	var b []byte
	for off := ptr; ; off++ {
		chunk, err := e.arena.Read(off, 1)
		if err != nil {
			return "", err
		}
		if chunk[0] == 0 {
			return string(b), nil
		}
		b = append(b, chunk[0])
	}
}

func (e *Engine) loadMesh(st *meshState, pathPtr uint64) ([]uint64, error) {
	name, err := e.guestName(pathPtr)
	if err != nil {
		return nil, err
	}
	buf, found := e.files[name]
	if !found {
		return fail(), nil
	}
	d, _, err := meshfmt.Decode(buf)
	if err != nil || d.Kind != st.kind {
		return fail(), nil
	}

	st.verts, st.vertRefs = d.Vertices, d.VertexRefs
	st.cells, st.cellRefs = d.Cells, d.CellRefs
	st.boundary, st.boundaryRefs = d.Boundary, d.BoundaryRefs
	st.np = d.VertexCount()
	st.nt = d.CellCount()
	st.na = d.BoundaryCount()
	return ok(), nil
}

func (e *Engine) saveMesh(st *meshState, pathPtr uint64) ([]uint64, error) {
	name, err := e.guestName(pathPtr)
	if err != nil {
		return nil, err
	}
	d := &meshfmt.Data{
		Kind:         st.kind,
		Vertices:     st.verts,
		VertexRefs:   st.vertRefs,
		Cells:        st.cells,
		CellRefs:     st.cellRefs,
		Boundary:     st.boundary,
		BoundaryRefs: st.boundaryRefs,
	}
	buf, err := meshfmt.Encode(d, meshfmt.FormatText)
	if err != nil {
		return fail(), nil
	}
	e.files[name] = buf
	return ok(), nil
}

func (e *Engine) saveSol(st *meshState, pathPtr uint64) ([]uint64, error) {
	name, err := e.guestName(pathPtr)
	if err != nil {
		return nil, err
	}
	if st.solCount == 0 || len(st.sol) == 0 {
		return fail(), nil
	}

	var b bytes.Buffer
	fmt.Fprintln(&b, "MeshVersionFormatted 2")
	fmt.Fprintf(&b, "Dimension %d\n\n", st.kind.Dim())
	fmt.Fprintf(&b, "SolAtVertices\n%d\n1 %d\n", st.solCount, st.solType)
	comps := len(st.sol) / int(st.solCount)
	for i := 0; i < int(st.solCount); i++ {
		for j := 0; j < comps; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(st.sol[i*comps+j], 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintln(&b, "\nEnd")
	e.files[name] = b.Bytes()
	return ok(), nil
}

func (e *Engine) loadSol(st *meshState, pathPtr uint64) ([]uint64, error) {
	name, err := e.guestName(pathPtr)
	if err != nil {
		return nil, err
	}
	buf, found := e.files[name]
	if !found {
		return fail(), nil
	}

	tokens := strings.Fields(string(buf))
	pos := 0
	next := func() (string, bool) {
		if pos >= len(tokens) {
			return "", false
		}
		t := tokens[pos]
		pos++
		return t, true
	}

	var count, solType int
	for {
		tok, more := next()
		if !more {
			return fail(), nil
		}
		if tok == "SolAtVertices" {
			c, _ := next()
			nTypes, _ := next()
			t, _ := next()
			count, err = strconv.Atoi(c)
			if err != nil || nTypes != "1" {
				return fail(), nil
			}
			if solType, err = strconv.Atoi(t); err != nil {
				return fail(), nil
			}
			break
		}
	}

	comps := 1
	switch solType {
	case 1:
	case 3:
		comps = st.kind.TensorComponents()
	default:
		return fail(), nil
	}

	vals := make([]float64, 0, count*comps)
	for i := 0; i < count*comps; i++ {
		tok, more := next()
		if !more {
			return nil, errors.New(errors.PhaseEngine, errors.KindInvalidData).
				Detail("truncated sol file %q", name).
				Build()
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fail(), nil
		}
		vals = append(vals, v)
	}

	st.solEntity, st.solCount, st.solType = 1, int32(count), int32(solType)
	st.sol = vals
	return ok(), nil
}
