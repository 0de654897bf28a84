package meshfmt

import (
	"bytes"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

// Format identifies a mesh buffer encoding.
type Format int

const (
	// FormatText is the human-readable MEDIT format.
	FormatText Format = iota
	// FormatBinary is the compact little-endian equivalent.
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// Data is the flat, kind-tagged content of one mesh buffer. Connectivity
// is 1-indexed throughout.
type Data struct {
	Kind         mmgwasm.Kind
	Vertices     []float64
	VertexRefs   []int32
	Cells        []int32
	CellRefs     []int32
	Boundary     []int32
	BoundaryRefs []int32
}

// VertexCount returns the number of vertices.
func (d *Data) VertexCount() int { return len(d.Vertices) / d.Kind.Dim() }

// CellCount returns the number of cells.
func (d *Data) CellCount() int { return len(d.Cells) / d.Kind.CellArity() }

// BoundaryCount returns the number of boundary elements.
func (d *Data) BoundaryCount() int { return len(d.Boundary) / d.Kind.BoundaryArity() }

// Validate checks internal consistency before encoding or upload.
func (d *Data) Validate() error {
	dim := d.Kind.Dim()
	if len(d.Vertices) == 0 || len(d.Vertices)%dim != 0 {
		return errors.Validation(errors.PhaseFormat, "vertices",
			"length %d is not a positive multiple of %d", len(d.Vertices), dim)
	}
	if len(d.Cells)%d.Kind.CellArity() != 0 {
		return errors.Validation(errors.PhaseFormat, "cells",
			"length %d is not a multiple of %d", len(d.Cells), d.Kind.CellArity())
	}
	if len(d.Boundary)%d.Kind.BoundaryArity() != 0 {
		return errors.Validation(errors.PhaseFormat, "boundary",
			"length %d is not a multiple of %d", len(d.Boundary), d.Kind.BoundaryArity())
	}
	if d.VertexRefs != nil && len(d.VertexRefs) != d.VertexCount() {
		return errors.Validation(errors.PhaseFormat, "vertexRefs",
			"got %d refs for %d vertices", len(d.VertexRefs), d.VertexCount())
	}
	if d.CellRefs != nil && len(d.CellRefs) != d.CellCount() {
		return errors.Validation(errors.PhaseFormat, "cellRefs",
			"got %d refs for %d cells", len(d.CellRefs), d.CellCount())
	}
	if d.BoundaryRefs != nil && len(d.BoundaryRefs) != d.BoundaryCount() {
		return errors.Validation(errors.PhaseFormat, "boundaryRefs",
			"got %d refs for %d boundary elements", len(d.BoundaryRefs), d.BoundaryCount())
	}
	nv := int32(d.VertexCount())
	for i, v := range append(append([]int32{}, d.Cells...), d.Boundary...) {
		if v < 1 || v > nv {
			return errors.Validation(errors.PhaseFormat, "connectivity",
				"index %d at position %d outside [1, %d]", v, i, nv)
		}
	}
	return nil
}

// Encode serializes d in the requested format.
func Encode(d *Data, f Format) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if f == FormatBinary {
		return encodeBinary(d)
	}
	return encodeText(d)
}

// Decode parses a mesh buffer, auto-detecting its format and kind.
func Decode(buf []byte) (*Data, Format, error) {
	if isBinary(buf) {
		d, err := decodeBinary(buf)
		return d, FormatBinary, err
	}
	d, err := decodeText(buf)
	return d, FormatText, err
}

// Detect reports the format and mesh kind of a buffer without a full
// parse of the binary payload.
func Detect(buf []byte) (Format, mmgwasm.Kind, error) {
	if isBinary(buf) {
		kind, err := peekBinaryKind(buf)
		return FormatBinary, kind, err
	}
	kind, err := peekTextKind(buf)
	return FormatText, kind, err
}

func isBinary(buf []byte) bool {
	return len(buf) >= 4 && bytes.Equal(buf[:4], binaryMagic[:])
}
