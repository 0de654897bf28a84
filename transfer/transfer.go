package transfer

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/errors"
)

// WriteFloat64s copies values into linear memory and returns the offset.
func WriteFloat64s(ctx context.Context, c engine.Caller, values []float64) (uint32, error) {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return writeBytes(ctx, c, buf)
}

// WriteInt32s copies values into linear memory and returns the offset.
func WriteInt32s(ctx context.Context, c engine.Caller, values []int32) (uint32, error) {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return writeBytes(ctx, c, buf)
}

// WriteCString copies s plus a NUL terminator into linear memory.
func WriteCString(ctx context.Context, c engine.Caller, s string) (uint32, error) {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return writeBytes(ctx, c, buf)
}

// WriteBytes copies raw bytes into linear memory and returns the offset.
func WriteBytes(ctx context.Context, c engine.Caller, data []byte) (uint32, error) {
	return writeBytes(ctx, c, data)
}

func writeBytes(ctx context.Context, c engine.Caller, data []byte) (uint32, error) {
	size := uint32(len(data))
	if size == 0 {
		// malloc(0) behavior differs across libc builds; use 1 byte so
		// the offset is always freeable.
		size = 1
	}
	ptr, err := c.Alloc(ctx, size)
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if err := c.Memory().Write(ptr, data); err != nil {
			c.Free(ctx, ptr)
			return 0, err
		}
	}
	return ptr, nil
}

// ReadFloat64s copies count float64 values out of linear memory.
func ReadFloat64s(mem mmgwasm.Memory, offset uint32, count int) ([]float64, error) {
	if count < 0 {
		return nil, errors.Validation(errors.PhaseTransfer, "count", "negative count %d", count)
	}
	data, err := mem.Read(offset, uint32(8*count))
	if err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out, nil
}

// ReadInt32s copies count int32 values out of linear memory.
func ReadInt32s(mem mmgwasm.Memory, offset uint32, count int) ([]int32, error) {
	if count < 0 {
		return nil, errors.Validation(errors.PhaseTransfer, "count", "negative count %d", count)
	}
	data, err := mem.Read(offset, uint32(4*count))
	if err != nil {
		return nil, err
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// Free releases one offset through the engine. It exists so call sites
// read symmetrically with the Write* helpers.
func Free(ctx context.Context, c engine.Caller, offset uint32) error {
	return c.Free(ctx, offset)
}
