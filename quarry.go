// Package quarry is a general-purpose dynamic memory allocator that serves
// arbitrary byte sizes from anonymous OS mappings instead of the Go runtime
// heap. Small requests share size-class pages, large requests receive
// dedicated regions. The four package-level functions mirror the classic
// heap interface over one process-wide allocator; use heap.New directly for
// an owned, optionally unsynchronized instance.
package quarry

import (
	"sync"
	"unsafe"

	"github.com/quarrymem/quarry/heap"
)

var (
	initOnce    sync.Once
	processHeap *heap.Allocator
)

func defaultHeap() *heap.Allocator {
	initOnce.Do(func() {
		processHeap = heap.New(heap.CreateOptions{
			Flags: heap.AllocatorCreateSynchronized,
		})
	})
	return processHeap
}

// Allocate returns a pointer to at least size writable bytes, or nil when
// size is not positive or backing memory cannot be obtained.
func Allocate(size int) unsafe.Pointer {
	return defaultHeap().Allocate(size)
}

// Release frees a pointer previously returned by Allocate, AllocateZeroed,
// or Resize. Release(nil) is a no-op.
func Release(ptr unsafe.Pointer) {
	defaultHeap().Free(ptr)
}

// AllocateZeroed returns a pointer to count*size zeroed bytes, or nil when
// either operand is not positive or the product overflows.
func AllocateZeroed(count, size int) unsafe.Pointer {
	return defaultHeap().AllocateZeroed(count, size)
}

// Resize grows or shrinks an allocation to at least size bytes, preserving
// the leading bytes. Resize(nil, n) allocates; Resize(p, 0) releases and
// returns nil.
func Resize(ptr unsafe.Pointer, size int) unsafe.Pointer {
	return defaultHeap().Resize(ptr, size)
}

// Capacity reports the full writable size behind a pointer issued by this
// package, or 0 when the pointer is nil or unrecognized.
func Capacity(ptr unsafe.Pointer) int {
	return defaultHeap().Capacity(ptr)
}

// StatsString renders the process heap's current shape as a JSON document.
func StatsString(detailed bool) string {
	return defaultHeap().BuildStatsString(detailed)
}
