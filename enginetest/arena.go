package enginetest

import (
	"encoding/binary"

	"github.com/mmgwasm/mmgwasm/errors"
)

// arena is a growable byte buffer with a bump allocator and explicit
// free tracking. It implements mmgwasm.Memory.
type arena struct {
	buf  []byte
	next uint32
	live map[uint32]uint32 // offset -> size
}

// Offset 0 stays unused so a zero pointer always means null.
const arenaBase = 1024

func newArena() *arena {
	return &arena{
		buf:  make([]byte, arenaBase),
		next: arenaBase,
		live: make(map[uint32]uint32),
	}
}

func (a *arena) malloc(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	// 8-byte alignment for f64 payloads.
	off := (a.next + 7) &^ 7
	end := off + size
	for uint32(len(a.buf)) < end {
		a.buf = append(a.buf, make([]byte, len(a.buf))...)
	}
	a.next = end
	a.live[off] = size
	return off
}

func (a *arena) free(ptr uint32) error {
	if ptr == 0 {
		return errors.New(errors.PhaseEngine, errors.KindInvalidData).
			Detail("free of null pointer").
			Build()
	}
	if _, ok := a.live[ptr]; !ok {
		return errors.New(errors.PhaseEngine, errors.KindInvalidData).
			Detail("free of unallocated or already-freed pointer %d", ptr).
			Build()
	}
	delete(a.live, ptr)
	return nil
}

func (a *arena) liveCount() int { return len(a.live) }

func (a *arena) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(a.buf)) {
		return errors.OutOfBounds(offset, length)
	}
	return nil
}

func (a *arena) Read(offset, length uint32) ([]byte, error) {
	if err := a.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, a.buf[offset:offset+length])
	return out, nil
}

func (a *arena) Write(offset uint32, data []byte) error {
	if err := a.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.buf[offset:], data)
	return nil
}

func (a *arena) ReadU32(offset uint32) (uint32, error) {
	if err := a.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.buf[offset:]), nil
}

func (a *arena) ReadU64(offset uint32) (uint64, error) {
	if err := a.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.buf[offset:]), nil
}

func (a *arena) WriteU32(offset uint32, value uint32) error {
	if err := a.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.buf[offset:], value)
	return nil
}

func (a *arena) WriteU64(offset uint32, value uint64) error {
	if err := a.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.buf[offset:], value)
	return nil
}

func (a *arena) Size() uint32 { return uint32(len(a.buf)) }
