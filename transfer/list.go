package transfer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmgwasm/mmgwasm/engine"
)

// AllocationList records offsets written for one engine call so they can
// be freed as a group once the call returns.
type AllocationList struct {
	offsets []uint32
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{offsets: make([]uint32, 0, 8)}
	},
}

// NewAllocationList fetches a list from the pool.
func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Add records an offset for later freeing. Offset 0 is ignored.
func (al *AllocationList) Add(offset uint32) {
	if offset != 0 {
		al.offsets = append(al.offsets, offset)
	}
}

// Count returns the number of recorded offsets.
func (al *AllocationList) Count() int {
	return len(al.offsets)
}

// FreeAll releases every recorded offset. Failures are logged and the
// remaining offsets are still freed.
func (al *AllocationList) FreeAll(ctx context.Context, c engine.Caller) {
	for _, off := range al.offsets {
		if err := c.Free(ctx, off); err != nil {
			engine.Logger().Warn("allocation list free failed",
				zap.Uint32("offset", off),
				zap.Error(err))
		}
	}
	al.offsets = al.offsets[:0]
}

// Release returns the list to the pool. Must be called after FreeAll;
// the list is invalid after Release.
func (al *AllocationList) Release() {
	// Only pool small lists to prevent memory bloat
	if cap(al.offsets) > maxPooledAllocationCapacity {
		return
	}
	al.offsets = al.offsets[:0]
	allocationListPool.Put(al)
}

// FreeAndRelease frees every recorded offset and returns the list to the
// pool in one step.
func (al *AllocationList) FreeAndRelease(ctx context.Context, c engine.Caller) {
	al.FreeAll(ctx, c)
	al.Release()
}
