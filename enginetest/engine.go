package enginetest

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

const maxHandles = 64

// table is one kind's fixed handle table.
type table struct {
	slots [maxHandles]*meshState
}

func (t *table) acquire(kind mmgwasm.Kind) int32 {
	for i := range t.slots {
		if t.slots[i] == nil {
			t.slots[i] = newMeshState(kind)
			return int32(i)
		}
	}
	return -1
}

func (t *table) release(h int32) bool {
	if h < 0 || h >= maxHandles || t.slots[h] == nil {
		return false
	}
	t.slots[h] = nil
	return true
}

func (t *table) available() int32 {
	n := int32(0)
	for i := range t.slots {
		if t.slots[i] == nil {
			n++
		}
	}
	return n
}

// Engine is the in-process fake. It implements engine.Caller.
type Engine struct {
	mu       sync.Mutex
	arena    *arena
	tables   map[mmgwasm.Kind]*table
	files    map[string][]byte
	versions map[string]uint32

	forcedCode int
	closed     bool
}

// New creates a fresh fake engine with empty handle tables.
func New() *Engine {
	return &Engine{
		arena: newArena(),
		tables: map[mmgwasm.Kind]*table{
			mmgwasm.Kind2D:      {},
			mmgwasm.Kind3D:      {},
			mmgwasm.KindSurface: {},
		},
		files:      make(map[string][]byte),
		versions:   make(map[string]uint32),
		forcedCode: -1,
	}
}

// ForceRemeshCode makes the next remesh call return code instead of
// running, for failure-path tests.
func (e *Engine) ForceRemeshCode(code int) {
	e.mu.Lock()
	e.forcedCode = code
	e.mu.Unlock()
}

// LiveAllocations returns the number of outstanding arena blocks. Zero
// after a well-behaved caller is done.
func (e *Engine) LiveAllocations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arena.liveCount()
}

// Memory returns the fake linear memory.
func (e *Engine) Memory() mmgwasm.Memory { return e.arena }

// Alloc reserves a block in the fake arena.
func (e *Engine) Alloc(ctx context.Context, size uint32) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.Disposed("engine")
	}
	return e.arena.malloc(size), nil
}

// Free releases a block. Double frees and unknown pointers are errors.
func (e *Engine) Free(ctx context.Context, ptr uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.Disposed("engine")
	}
	return e.arena.free(ptr)
}

// WriteFile stages a file into the virtual storage.
func (e *Engine) WriteFile(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	e.files[name] = cp
	return nil
}

// ReadFile reads a staged or engine-written file back.
func (e *Engine) ReadFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, errors.New(errors.PhaseEngine, errors.KindNotFound).
			Detail("no file %q in virtual storage", name).
			Build()
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// GuestPath mirrors the real engine's mount point.
func (e *Engine) GuestPath(name string) string { return "/work/" + name }

// Close drops all state. Calls afterwards fail.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Call dispatches an entry point by name.
func (e *Engine) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Disposed("engine")
	}

	switch name {
	case "mmg_version", "mmgwasm_version":
		return e.versionPtr(name)
	}

	kind, op, err := splitName(name)
	if err != nil {
		return nil, err
	}
	return e.dispatch(kind, op, args)
}

// versionPtr returns a stable pointer to a NUL-terminated version
// string, mirroring the static strings the real exports return.
func (e *Engine) versionPtr(name string) ([]uint64, error) {
	if ptr, found := e.versions[name]; found {
		return []uint64{uint64(ptr)}, nil
	}
	s := "5.7.3"
	if name == "mmgwasm_version" {
		s = "0.1.0"
	}
	ptr := e.arena.malloc(uint32(len(s) + 1))
	if err := e.arena.Write(ptr, append([]byte(s), 0)); err != nil {
		return nil, err
	}
	e.versions[name] = ptr
	return []uint64{uint64(ptr)}, nil
}

func splitName(name string) (mmgwasm.Kind, string, error) {
	switch {
	case strings.HasPrefix(name, "mmg2d_"):
		return mmgwasm.Kind2D, name[len("mmg2d_"):], nil
	case strings.HasPrefix(name, "mmg3d_"):
		return mmgwasm.Kind3D, name[len("mmg3d_"):], nil
	case strings.HasPrefix(name, "mmgs_"):
		return mmgwasm.KindSurface, name[len("mmgs_"):], nil
	}
	return 0, "", errors.New(errors.PhaseEngine, errors.KindNotFound).
		Detail("unknown export %q", name).
		Build()
}

func (e *Engine) state(kind mmgwasm.Kind, h int32) *meshState {
	if h < 0 || h >= maxHandles {
		return nil
	}
	return e.tables[kind].slots[h]
}

func i32(arg uint64) int32   { return int32(uint32(arg)) }
func f64(arg uint64) float64 { return math.Float64frombits(arg) }

func ok() []uint64   { return []uint64{1} }
func fail() []uint64 { return []uint64{0} }
func ret(v int32) []uint64 {
	return []uint64{uint64(uint32(v))}
}

func (e *Engine) dispatch(kind mmgwasm.Kind, op string, args []uint64) ([]uint64, error) {
	t := e.tables[kind]

	switch op {
	case "init":
		return ret(t.acquire(kind)), nil
	case "free":
		if !t.release(i32(args[0])) {
			return fail(), nil
		}
		return ok(), nil
	case "get_max_handles":
		return ret(maxHandles), nil
	case "get_available_handles":
		return ret(t.available()), nil
	case "free_array":
		if err := e.arena.free(uint32(args[0])); err != nil {
			return nil, err
		}
		return nil, nil
	}

	st := e.state(kind, i32(args[0]))
	if st == nil {
		return fail(), nil
	}
	rest := args[1:]

	switch op {
	case "set_mesh_size":
		return e.setMeshSize(st, rest), nil
	case "get_mesh_size":
		return e.getMeshSize(st, rest)
	case "set_vertices":
		return e.setVertices(st, rest)
	case "get_vertices":
		return e.getFloat64s(st.verts, len(st.verts)/st.kind.Dim(), rest[0])
	case "set_vertex":
		return e.setVertex(st, rest), nil
	case "set_triangles", "set_tetrahedra", "set_edges":
		return e.setConn(st, op, rest)
	case "get_triangles", "get_tetrahedra", "get_edges":
		conn, arity := st.connFor(op)
		return e.getInt32s(conn, len(conn)/arity, rest[0])
	case "set_triangle", "set_tetrahedron", "set_edge":
		return e.setConnOne(st, op, rest), nil
	case "set_iparameter":
		st.iparams[i32(rest[0])] = i32(rest[1])
		return ok(), nil
	case "set_dparameter":
		st.dparams[i32(rest[0])] = f64(rest[1])
		return ok(), nil
	case "set_sol_size":
		st.solEntity, st.solCount, st.solType = i32(rest[0]), i32(rest[1]), i32(rest[2])
		st.sol = nil
		return ok(), nil
	case "get_sol_size":
		return e.getSolSize(st, rest)
	case "set_scalar_sols":
		return e.setSols(st, 1, 1, rest[0])
	case "get_scalar_sols":
		return e.getFloat64s(st.sol, int(st.solCount), rest[0])
	case "set_tensor_sols":
		return e.setSols(st, 3, st.kind.TensorComponents(), rest[0])
	case "get_tensor_sols":
		return e.getFloat64s(st.sol, int(st.solCount), rest[0])
	case "remesh":
		if e.forcedCode >= 0 {
			code := e.forcedCode
			e.forcedCode = -1
			return ret(int32(code)), nil
		}
		return ret(int32(st.remesh())), nil
	case "get_triangle_quality", "get_tetrahedron_quality":
		q := st.cellQuality(int(i32(rest[0])) - 1)
		return []uint64{math.Float64bits(q)}, nil
	case "get_triangles_qualities", "get_tetrahedra_qualities":
		n := len(st.cells) / st.kind.CellArity()
		quals := make([]float64, n)
		for i := range quals {
			quals[i] = st.cellQuality(i)
		}
		return e.getFloat64s(quals, n, rest[0])
	case "load_mesh":
		return e.loadMesh(st, rest[0])
	case "save_mesh":
		return e.saveMesh(st, rest[0])
	case "load_sol":
		return e.loadSol(st, rest[0])
	case "save_sol":
		return e.saveSol(st, rest[0])
	}

	return nil, errors.New(errors.PhaseEngine, errors.KindNotFound).
		Detail("unknown entry point %q for %s", op, kind).
		Build()
}

func (e *Engine) setMeshSize(st *meshState, args []uint64) []uint64 {
	switch st.kind {
	case mmgwasm.Kind2D:
		// np, nt, nquad, na
		st.np, st.nt, st.na = int(i32(args[0])), int(i32(args[1])), int(i32(args[3]))
	case mmgwasm.Kind3D:
		// np, ne, nprism, nt, nquad, na
		st.np, st.nt, st.na = int(i32(args[0])), int(i32(args[1])), int(i32(args[3]))
	case mmgwasm.KindSurface:
		// np, nt, na
		st.np, st.nt, st.na = int(i32(args[0])), int(i32(args[1])), int(i32(args[2]))
	}
	if st.np < 0 || st.nt < 0 || st.na < 0 {
		return fail()
	}
	st.verts, st.vertRefs = nil, nil
	st.cells, st.cellRefs = nil, nil
	st.boundary, st.boundaryRefs = nil, nil
	return ok()
}

func (e *Engine) getMeshSize(st *meshState, args []uint64) ([]uint64, error) {
	np := int32(len(st.verts) / st.kind.Dim())
	nc := int32(len(st.cells) / st.kind.CellArity())
	nb := int32(len(st.boundary) / st.kind.BoundaryArity())

	var vals []int32
	switch st.kind {
	case mmgwasm.Kind2D:
		vals = []int32{np, nc, 0, nb}
	case mmgwasm.Kind3D:
		vals = []int32{np, nc, 0, nb, 0, 0}
	case mmgwasm.KindSurface:
		vals = []int32{np, nc, nb}
	}
	for i, v := range vals {
		if err := e.arena.WriteU32(uint32(args[i]), uint32(v)); err != nil {
			return nil, err
		}
	}
	return ok(), nil
}

func (e *Engine) setVertices(st *meshState, args []uint64) ([]uint64, error) {
	if st.np <= 0 {
		return fail(), nil
	}
	coords, err := e.readFloat64s(uint32(args[0]), st.np*st.kind.Dim())
	if err != nil {
		return nil, err
	}
	st.verts = coords
	st.vertRefs = nil
	if refsPtr := uint32(args[1]); refsPtr != 0 {
		refs, err := e.readInt32s(refsPtr, st.np)
		if err != nil {
			return nil, err
		}
		st.vertRefs = refs
	}
	return ok(), nil
}

func (e *Engine) setVertex(st *meshState, args []uint64) []uint64 {
	dim := st.kind.Dim()
	pos := int(i32(args[dim+1]))
	if st.np <= 0 || pos < 1 || pos > st.np {
		return fail()
	}
	if len(st.verts) < st.np*dim {
		st.verts = append(st.verts, make([]float64, st.np*dim-len(st.verts))...)
	}
	for k := 0; k < dim; k++ {
		st.verts[(pos-1)*dim+k] = f64(args[k])
	}
	if ref := i32(args[dim]); ref != 0 {
		if len(st.vertRefs) < st.np {
			st.vertRefs = append(st.vertRefs, make([]int32, st.np-len(st.vertRefs))...)
		}
		st.vertRefs[pos-1] = ref
	}
	return ok()
}

// connFor maps a getter name to the backing array. Triangles are cells
// for planar and surface meshes but the boundary of volumetric ones.
func (st *meshState) connFor(op string) ([]int32, int) {
	switch op {
	case "get_tetrahedra", "set_tetrahedra":
		return st.cells, 4
	case "get_triangles", "set_triangles":
		if st.kind == mmgwasm.Kind3D {
			return st.boundary, 3
		}
		return st.cells, 3
	default: // edges
		return st.boundary, 2
	}
}

func (e *Engine) setConn(st *meshState, op string, args []uint64) ([]uint64, error) {
	isCells := op == "set_tetrahedra" || (op == "set_triangles" && st.kind != mmgwasm.Kind3D)
	count := st.na
	arity := st.kind.BoundaryArity()
	if isCells {
		count = st.nt
		arity = st.kind.CellArity()
	}
	if count <= 0 {
		return fail(), nil
	}

	conn, err := e.readInt32s(uint32(args[0]), count*arity)
	if err != nil {
		return nil, err
	}
	var refs []int32
	if refsPtr := uint32(args[1]); refsPtr != 0 {
		if refs, err = e.readInt32s(refsPtr, count); err != nil {
			return nil, err
		}
	}
	if isCells {
		st.cells, st.cellRefs = conn, refs
	} else {
		st.boundary, st.boundaryRefs = conn, refs
	}
	return ok(), nil
}

func (e *Engine) setConnOne(st *meshState, op string, args []uint64) []uint64 {
	isCells := op == "set_tetrahedron" || (op == "set_triangle" && st.kind != mmgwasm.Kind3D)
	count := st.na
	arity := st.kind.BoundaryArity()
	if isCells {
		count = st.nt
		arity = st.kind.CellArity()
	}
	pos := int(i32(args[arity+1]))
	if count <= 0 || pos < 1 || pos > count {
		return fail()
	}

	target := &st.boundary
	refs := &st.boundaryRefs
	if isCells {
		target = &st.cells
		refs = &st.cellRefs
	}
	if len(*target) < count*arity {
		*target = append(*target, make([]int32, count*arity-len(*target))...)
	}
	for k := 0; k < arity; k++ {
		(*target)[(pos-1)*arity+k] = i32(args[k])
	}
	if ref := i32(args[arity]); ref != 0 {
		if len(*refs) < count {
			*refs = append(*refs, make([]int32, count-len(*refs))...)
		}
		(*refs)[pos-1] = ref
	}
	return ok()
}

func (e *Engine) getSolSize(st *meshState, args []uint64) ([]uint64, error) {
	vals := []int32{st.solEntity, st.solCount, st.solType}
	for i, v := range vals {
		if err := e.arena.WriteU32(uint32(args[i]), uint32(v)); err != nil {
			return nil, err
		}
	}
	return ok(), nil
}

func (e *Engine) setSols(st *meshState, solType int32, comps int, ptr uint64) ([]uint64, error) {
	if st.solCount <= 0 || st.solType != solType {
		return fail(), nil
	}
	vals, err := e.readFloat64s(uint32(ptr), int(st.solCount)*comps)
	if err != nil {
		return nil, err
	}
	st.sol = vals
	return ok(), nil
}

// getFloat64s implements the getter protocol: malloc a result buffer,
// write the count through the out-pointer, return the buffer address.
// Empty arrays yield a null pointer with count zero, like the real
// wrappers.
func (e *Engine) getFloat64s(vals []float64, count int, outPtr uint64) ([]uint64, error) {
	if len(vals) == 0 {
		if err := e.arena.WriteU32(uint32(outPtr), 0); err != nil {
			return nil, err
		}
		return fail(), nil
	}
	ptr := e.arena.malloc(uint32(len(vals) * 8))
	for i, v := range vals {
		if err := e.arena.WriteU64(ptr+uint32(i*8), math.Float64bits(v)); err != nil {
			return nil, err
		}
	}
	if err := e.arena.WriteU32(uint32(outPtr), uint32(int32(count))); err != nil {
		return nil, err
	}
	return []uint64{uint64(ptr)}, nil
}

func (e *Engine) getInt32s(vals []int32, count int, outPtr uint64) ([]uint64, error) {
	if len(vals) == 0 {
		if err := e.arena.WriteU32(uint32(outPtr), 0); err != nil {
			return nil, err
		}
		return fail(), nil
	}
	ptr := e.arena.malloc(uint32(len(vals) * 4))
	for i, v := range vals {
		if err := e.arena.WriteU32(ptr+uint32(i*4), uint32(v)); err != nil {
			return nil, err
		}
	}
	if err := e.arena.WriteU32(uint32(outPtr), uint32(int32(count))); err != nil {
		return nil, err
	}
	return []uint64{uint64(ptr)}, nil
}

func (e *Engine) readFloat64s(ptr uint32, count int) ([]float64, error) {
	out := make([]float64, count)
	for i := range out {
		bits, err := e.arena.ReadU64(ptr + uint32(i*8))
		if err != nil {
			return nil, err
		}
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

func (e *Engine) readInt32s(ptr uint32, count int) ([]int32, error) {
	out := make([]int32, count)
	for i := range out {
		v, err := e.arena.ReadU32(ptr + uint32(i*4))
		if err != nil {
			return nil, err
		}
		out[i] = int32(v)
	}
	return out, nil
}
