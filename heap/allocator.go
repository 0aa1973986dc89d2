package heap

import (
	"context"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/quarrymem/quarry/heap/internal/utils"
	"golang.org/x/exp/slog"
)

// Allocator is a size-class segregated heap backed directly by anonymous OS
// mappings. Small requests share pages subdivided into fixed-size cells;
// large requests each receive a dedicated multi-page region that is unmapped
// on release.
//
// An Allocator is not safe for concurrent use unless it was created with
// AllocatorCreateSynchronized.
type Allocator struct {
	mutex  utils.OptionalMutex
	logger *slog.Logger

	classPages  [NumSizeClasses]*pageHeader
	regions     regionList
	regionIndex *swiss.Map[uintptr, *regionHeader]
}

// Allocate returns a pointer to at least size writable bytes, or nil when
// size is not positive or the OS refuses backing memory. The result is
// aligned to the machine word, or to the block size for the classes smaller
// than a word. Contents are unspecified: a small cell's first two bytes hold
// a stale free-list link, and reused cells carry stale bytes.
func (a *Allocator) Allocate(size int) unsafe.Pointer {
	if size <= 0 {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if size > MaxSmallSize {
		return a.allocateLarge(size)
	}
	return a.allocateSmall(size)
}

// Free releases a pointer previously returned by Allocate, AllocateZeroed,
// or Resize. nil is a no-op. A pointer the allocator never issued is
// ignored when detectable; see pageOf for the limits of detection.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.free(ptr)
}

// AllocateZeroed returns a pointer to count*size zeroed bytes. It returns
// nil when either operand is not positive or their product overflows.
func (a *Allocator) AllocateZeroed(count, size int) unsafe.Pointer {
	if count <= 0 || size <= 0 {
		return nil
	}

	total := count * size
	if total/count != size {
		return nil
	}

	ptr := a.Allocate(total)
	if ptr == nil {
		return nil
	}

	mem := unsafe.Slice((*byte)(ptr), total)
	for i := range mem {
		mem[i] = 0
	}
	return ptr
}

// Resize grows or shrinks an allocation to at least size bytes, preserving
// the leading min(old capacity, size) bytes. A nil ptr degenerates to
// Allocate; size 0 degenerates to Free with a nil result. When the existing
// block's class already matches the request the pointer is returned
// unchanged. On allocation failure the old block is left intact and nil is
// returned.
func (a *Allocator) Resize(ptr unsafe.Pointer, size int) unsafe.Pointer {
	if ptr == nil {
		return a.Allocate(size)
	}
	if size <= 0 {
		a.Free(ptr)
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	capacity := a.capacity(ptr)
	if capacity != 0 && size <= capacity {
		if capacity > MaxSmallSize {
			if size > MaxSmallSize {
				return ptr
			}
		} else if ClassToSize(SizeToClass(size)) == capacity {
			return ptr
		}
	}

	var newPtr unsafe.Pointer
	if size > MaxSmallSize {
		newPtr = a.allocateLarge(size)
	} else {
		newPtr = a.allocateSmall(size)
	}
	if newPtr == nil {
		return nil
	}

	// capacity 0 means the pointer was not ours; treat the call as a fresh
	// allocation with nothing to carry over.
	if capacity != 0 {
		n := capacity
		if size < n {
			n = size
		}
		copy(unsafe.Slice((*byte)(newPtr), n), unsafe.Slice((*byte)(ptr), n))
		a.free(ptr)
	}

	return newPtr
}

// Capacity recovers the full writable size behind a pointer this allocator
// issued: the cell's block size for small allocations, the mapped length
// minus the header for large ones. It returns 0 for nil or unrecognized
// pointers.
func (a *Allocator) Capacity(ptr unsafe.Pointer) int {
	if ptr == nil {
		return 0
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.capacity(ptr)
}

func (a *Allocator) allocateSmall(size int) unsafe.Pointer {
	class := SizeToClass(size)

	page := a.classPages[class]
	for page != nil && page.freeHead == 0 {
		page = page.next
	}

	if page == nil {
		blockSize := ClassToSize(class)
		fresh, err := provisionPage(blockSize)
		if err != nil {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "page provisioning failed",
				slog.Int("blockSize", blockSize), slog.String("error", err.Error()))
			return nil
		}
		fresh.next = a.classPages[class]
		a.classPages[class] = fresh
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "provisioned page",
			slog.Int("class", class), slog.Int("blockSize", blockSize), slog.Int("cells", int(fresh.capacity)))
		page = fresh
	}

	return page.popCell()
}

func (a *Allocator) allocateLarge(size int) unsafe.Pointer {
	region, err := mapRegion(size)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "region mapping failed",
			slog.Int("size", size), slog.String("error", err.Error()))
		return nil
	}

	a.regions.push(region)
	a.regionIndex.Put(uintptr(region.userPointer()), region)
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "mapped region",
		slog.Int("size", size), slog.Int("mapped", region.mapped))
	return region.userPointer()
}

func (a *Allocator) free(ptr unsafe.Pointer) {
	if page := pageOf(ptr); page != nil {
		if !page.pushCell(ptr) {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "ignored duplicate or misaligned cell release",
				slog.Uint64("ptr", uint64(uintptr(ptr))))
		}
		return
	}

	if region, ok := a.regionIndex.Get(uintptr(ptr)); ok {
		a.regions.remove(region)
		a.regionIndex.Delete(uintptr(ptr))
		mapped := region.mapped
		if err := unmapRegion(region); err != nil {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "region unmap failed",
				slog.String("error", err.Error()))
			return
		}
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "unmapped region",
			slog.Int("mapped", mapped))
		return
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "ignored release of unknown pointer",
		slog.Uint64("ptr", uint64(uintptr(ptr))))
}

func (a *Allocator) capacity(ptr unsafe.Pointer) int {
	if page := pageOf(ptr); page != nil {
		return page.blockSize
	}
	if region, ok := a.regionIndex.Get(uintptr(ptr)); ok {
		return region.payload()
	}
	return 0
}

// pageOf masks ptr down to its page base and validates the candidate header
// found there. The mask is sound because every small page starts at a
// PageSize-aligned mapping and its header leads with a magic word plus one
// of the ten class sizes; a large region's base page leads with a different
// magic, so its user pointer always falls through to the region index.
//
// A foreign pointer that happens to land inside one of our small pages is
// indistinguishable from a cell and will be accepted. That hazard is
// inherent to mask-based classification.
func pageOf(ptr unsafe.Pointer) *pageHeader {
	if uintptr(ptr)&^uintptr(pageMask) == 0 {
		return nil
	}

	candidate := (*pageHeader)(unsafe.Pointer(uintptr(ptr) &^ uintptr(pageMask)))
	if candidate.magic != pageMagic || !validClassSize(candidate.blockSize) {
		return nil
	}
	return candidate
}
