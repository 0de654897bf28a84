package meshfmt

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

// binaryMagic opens every binary mesh buffer ("MMGB").
var binaryMagic = [4]byte{'M', 'M', 'G', 'B'}

const binaryVersion = 1

func encodeBinary(d *Data) ([]byte, error) {
	var b bytes.Buffer
	b.Write(binaryMagic[:])
	writeU32(&b, binaryVersion)
	b.WriteByte(byte(d.Kind))

	writeF64s(&b, d.Vertices)
	writeI32s(&b, d.VertexRefs)
	writeI32s(&b, d.Cells)
	writeI32s(&b, d.CellRefs)
	writeI32s(&b, d.Boundary)
	writeI32s(&b, d.BoundaryRefs)

	return b.Bytes(), nil
}

func decodeBinary(buf []byte) (*Data, error) {
	r := &binaryReader{buf: buf}
	r.skip(4) // magic already checked

	version := r.u32()
	if version != binaryVersion {
		return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("unsupported binary version %d", version).
			Build()
	}
	kind := mmgwasm.Kind(r.u8())
	if kind != mmgwasm.Kind2D && kind != mmgwasm.Kind3D && kind != mmgwasm.KindSurface {
		return nil, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("bad kind byte %d", kind).
			Build()
	}

	d := &Data{Kind: kind}
	d.Vertices = r.f64s()
	d.VertexRefs = r.i32s()
	d.Cells = r.i32s()
	d.CellRefs = r.i32s()
	d.Boundary = r.i32s()
	d.BoundaryRefs = r.i32s()
	if r.err != nil {
		return nil, r.err
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func peekBinaryKind(buf []byte) (mmgwasm.Kind, error) {
	if len(buf) < 9 {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("truncated binary header").
			Build()
	}
	kind := mmgwasm.Kind(buf[8])
	if kind != mmgwasm.Kind2D && kind != mmgwasm.Kind3D && kind != mmgwasm.KindSurface {
		return 0, errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("bad kind byte %d", kind).
			Build()
	}
	return kind, nil
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func writeF64s(b *bytes.Buffer, vals []float64) {
	writeU32(b, uint32(len(vals)))
	var tmp [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		b.Write(tmp[:])
	}
}

func writeI32s(b *bytes.Buffer, vals []int32) {
	writeU32(b, uint32(len(vals)))
	var tmp [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		b.Write(tmp[:])
	}
}

type binaryReader struct {
	buf []byte
	pos int
	err error
}

func (r *binaryReader) fail() {
	if r.err == nil {
		r.err = errors.New(errors.PhaseFormat, errors.KindInvalidData).
			Detail("truncated binary buffer at offset %d", r.pos).
			Build()
	}
}

func (r *binaryReader) skip(n int) {
	if r.pos+n > len(r.buf) {
		r.fail()
		return
	}
	r.pos += n
}

func (r *binaryReader) u8() byte {
	if r.err != nil || r.pos+1 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *binaryReader) u32() uint32 {
	if r.err != nil || r.pos+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *binaryReader) f64s() []float64 {
	n := int(r.u32())
	if r.err != nil || n == 0 || r.pos+8*n > len(r.buf) {
		if n != 0 {
			r.fail()
		}
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.pos:]))
		r.pos += 8
	}
	return out
}

func (r *binaryReader) i32s() []int32 {
	n := int(r.u32())
	if r.err != nil || n == 0 || r.pos+4*n > len(r.buf) {
		if n != 0 {
			r.fail()
		}
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(r.buf[r.pos:]))
		r.pos += 4
	}
	return out
}
