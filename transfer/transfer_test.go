package transfer

import (
	"context"
	"testing"

	"github.com/mmgwasm/mmgwasm/enginetest"
)

func TestFloat64RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	values := []float64{0, 1.5, -2.25, 1e300, -1e-300}
	ptr, err := WriteFloat64s(ctx, e, values)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFloat64s(e.Memory(), ptr, len(values))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("value %d = %g, want %g", i, got[i], v)
		}
	}
	if err := Free(ctx, e, ptr); err != nil {
		t.Fatalf("free: %v", err)
	}
	if n := e.LiveAllocations(); n != 0 {
		t.Fatalf("%d allocations leaked", n)
	}
}

func TestInt32RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	values := []int32{1, -1, 0, 2147483647, -2147483648}
	ptr, err := WriteInt32s(ctx, e, values)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadInt32s(e.Memory(), ptr, len(values))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("value %d = %d, want %d", i, got[i], v)
		}
	}
	if err := Free(ctx, e, ptr); err != nil {
		t.Fatalf("free: %v", err)
	}
}

func TestWriteCString(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	ptr, err := WriteCString(ctx, e, "mesh.mesh")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := e.Memory().Read(ptr, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw[:9]) != "mesh.mesh" || raw[9] != 0 {
		t.Fatalf("stored bytes %q", raw)
	}
	Free(ctx, e, ptr)
}

func TestWriteEmptySlice(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	// Empty payloads still get a distinct non-null allocation.
	ptr, err := WriteFloat64s(ctx, e, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if ptr == 0 {
		t.Fatal("empty write returned null")
	}
	if err := Free(ctx, e, ptr); err != nil {
		t.Fatalf("free: %v", err)
	}
}

func TestDoubleFreeSurfaces(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	ptr, err := WriteInt32s(ctx, e, []int32{1, 2, 3})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Free(ctx, e, ptr); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := Free(ctx, e, ptr); err == nil {
		t.Fatal("double free not surfaced")
	}
}

func TestAllocationListFreesEverything(t *testing.T) {
	ctx := context.Background()
	e := enginetest.New()

	al := NewAllocationList()
	for i := 0; i < 5; i++ {
		ptr, err := WriteInt32s(ctx, e, []int32{int32(i)})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		al.Add(ptr)
	}
	al.Add(0) // null offsets are ignored
	if al.Count() != 5 {
		t.Fatalf("count = %d, want 5", al.Count())
	}

	al.FreeAndRelease(ctx, e)
	if n := e.LiveAllocations(); n != 0 {
		t.Fatalf("%d allocations leaked after FreeAll", n)
	}
}

func TestReadOutOfBounds(t *testing.T) {
	e := enginetest.New()
	if _, err := ReadFloat64s(e.Memory(), 1<<30, 4); err == nil {
		t.Fatal("out-of-bounds read succeeded")
	}
}
