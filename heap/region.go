package heap

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/quarrymem/quarry/heap/internal/mmap"
	"github.com/quarrymem/quarry/memutils"
)

// regionMagic is the first word of every large-region header. It is distinct
// from pageMagic so that masking a large user pointer to its page base can
// never classify it as a small cell.
const regionMagic uint64 = 0x6e0a47d15c29b8e4

// regionHeader sits at the base of every large mapping. The caller's bytes
// begin at regionReserve past it. mapped records the full mapping length so
// release can unmap the identical extent.
type regionHeader struct {
	magic  uint64
	mapped int
	next   *regionHeader
	prev   *regionHeader
}

var regionReserve = int(memutils.AlignUp(unsafe.Sizeof(regionHeader{}), uintptr(wordSize)))

// mapRegion maps a dedicated region large enough for size caller bytes plus
// the header, rounded up to whole pages.
func mapRegion(size int) (*regionHeader, error) {
	mapped := memutils.RoundUpPages(size+regionReserve, PageSize)
	mem, err := mmap.Alloc(mapped)
	if err != nil {
		return nil, err
	}

	r := (*regionHeader)(unsafe.Pointer(&mem[0]))
	r.magic = regionMagic
	r.mapped = mapped
	r.next = nil
	r.prev = nil
	return r, nil
}

// unmapRegion returns the region's whole mapping to the OS. The caller must
// have unlinked it from the region list first. The magic word is cleared
// before the unmap so a stale header can never classify again.
func unmapRegion(r *regionHeader) error {
	mapped := r.mapped
	r.magic = 0
	mem := unsafe.Slice((*byte)(unsafe.Pointer(r)), mapped)
	return mmap.Free(mem)
}

// userPointer returns the address handed to the caller for this region.
func (r *regionHeader) userPointer() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(r), regionReserve)
}

// payload returns the caller-usable capacity of the region.
func (r *regionHeader) payload() int {
	return r.mapped - regionReserve
}

// regionList threads every live large region through a doubly-linked list.
// Insertion prepends; removal splices in O(1) given the node.
type regionList struct {
	count int
	head  *regionHeader
}

func (l *regionList) push(r *regionHeader) {
	r.prev = nil
	r.next = l.head
	if l.head != nil {
		l.head.prev = r
	}
	l.head = r
	l.count++
}

func (l *regionList) remove(r *regionHeader) {
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		l.head = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}

	r.next = nil
	r.prev = nil
	l.count--
}

func (l *regionList) IsEmpty() bool {
	return l.count == 0
}

func (l *regionList) Validate() error {
	declaredCount := l.count
	actualCount := 0

	var prev *regionHeader
	for r := l.head; r != nil; r = r.next {
		if r.magic != regionMagic {
			return errors.Errorf("region header magic is %#x, want %#x", r.magic, regionMagic)
		}
		if r.prev != prev {
			return errors.Errorf("region at %p has a broken prev link", r.userPointer())
		}
		if r.mapped < PageSize || r.mapped%PageSize != 0 {
			return errors.Errorf("region at %p maps %d bytes, which is not a positive multiple of the page size", r.userPointer(), r.mapped)
		}
		actualCount++
		prev = r
	}

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of large regions in the list (%d) does not match the actual number of regions (%d)", declaredCount, actualCount)
	}

	return nil
}

// AddDetailedStatistics sums every live region's statistics into stats.
func (l *regionList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for r := l.head; r != nil; r = r.next {
		stats.RegionCount++
		stats.MappedBytes += r.mapped
		stats.AddAllocation(r.payload())
	}
}

func (l *regionList) BuildStatsString(writer *jwriter.Writer) {
	s := writer.Array()
	defer s.End()

	for r := l.head; r != nil; r = r.next {
		o := s.Object()
		o.Name("MappedBytes").Int(r.mapped)
		o.Name("PayloadBytes").Int(r.payload())
		o.End()
	}
}
