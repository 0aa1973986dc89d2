package heap

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/quarrymem/quarry/heap/internal/mmap"
	"github.com/quarrymem/quarry/memutils"
)

// pageMagic is the first word of every small-page header. Together with a
// valid block size it lets release classify a masked pointer as one of ours.
const pageMagic uint64 = 0x93b1c52a88f0d317

var wordSize = int(unsafe.Sizeof(uintptr(0)))

// pageHeader sits at the base of every small page. The page's cells begin at
// headerReserve and run to the end of the page in strides of blockSize.
//
// Free cells are threaded through the page as a singly-linked list of uint16
// offsets from the page base. Offset 0 terminates the list: the header
// occupies it, so no cell can ever live there. Offsets keep the link narrow
// enough to fit the 2-byte class and guarantee the list can never leave the
// page.
type pageHeader struct {
	magic     uint64
	blockSize int
	next      *pageHeader
	freeHead  uint16
	freeCells uint16
	capacity  uint16
}

var headerReserve = int(memutils.AlignUp(unsafe.Sizeof(pageHeader{}), uintptr(wordSize)))

// provisionPage maps one fresh page from the OS, installs the header, and
// threads every cell onto the page-local free list. The caller links the
// page into its class list. Returns nil and the mapping error if the OS
// refuses the page; no state changes in that case.
func provisionPage(blockSize int) (*pageHeader, error) {
	mem, err := mmap.Alloc(PageSize)
	if err != nil {
		return nil, err
	}

	p := (*pageHeader)(unsafe.Pointer(&mem[0]))
	p.magic = pageMagic
	p.blockSize = blockSize
	p.next = nil

	count := (PageSize - headerReserve) / blockSize
	p.capacity = uint16(count)
	p.freeCells = uint16(count)

	p.freeHead = 0
	for i := count - 1; i >= 0; i-- {
		off := uint16(headerReserve + i*blockSize)
		p.setCellNext(off, p.freeHead)
		p.freeHead = off
		if blockSize > 2 {
			memutils.PoisonRange(unsafe.Add(p.cellPointer(off), 2), blockSize-2)
		}
	}

	return p, nil
}

// cellPointer converts a cell offset into a pointer. off must lie within
// this page.
func (p *pageHeader) cellPointer(off uint16) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(p), int(off))
}

// cellNext reads the free-list link stored in the first two bytes of a free
// cell. Only cells currently on the free list may be read this way; a live
// cell's bytes belong to the caller. Cell offsets are always multiples of
// the block size past headerReserve, so the uint16 load is aligned.
func (p *pageHeader) cellNext(off uint16) uint16 {
	return *(*uint16)(p.cellPointer(off))
}

// setCellNext stores the free-list link into a free cell. The same aliasing
// rule as cellNext applies.
func (p *pageHeader) setCellNext(off uint16, next uint16) {
	*(*uint16)(p.cellPointer(off)) = next
}

// containsCell reports whether off is the base of one of this page's cells.
func (p *pageHeader) containsCell(off int) bool {
	if off < headerReserve || off >= headerReserve+int(p.capacity)*p.blockSize {
		return false
	}
	return (off-headerReserve)%p.blockSize == 0
}

// popCell unlinks and returns the head of the free list, or nil when the
// page is exhausted.
func (p *pageHeader) popCell() unsafe.Pointer {
	off := p.freeHead
	if off == 0 {
		return nil
	}
	p.freeHead = p.cellNext(off)
	p.freeCells--
	return p.cellPointer(off)
}

// pushCell threads a released cell back onto the head of the free list. It
// returns false without mutating the page when the pointer does not land on
// a cell boundary, when the cell is already the list head (the detectable
// double-free case), or when every cell of the page is already free.
func (p *pageHeader) pushCell(ptr unsafe.Pointer) bool {
	off := int(uintptr(ptr) - uintptr(unsafe.Pointer(p)))
	if !p.containsCell(off) {
		return false
	}
	cell := uint16(off)
	if cell == p.freeHead || p.freeCells == p.capacity {
		return false
	}

	p.setCellNext(cell, p.freeHead)
	p.freeHead = cell
	p.freeCells++
	if p.blockSize > 2 {
		memutils.PoisonRange(unsafe.Add(ptr, 2), p.blockSize-2)
	}
	return true
}

// liveCells returns the number of cells currently handed out to callers.
func (p *pageHeader) liveCells() int {
	return int(p.capacity) - int(p.freeCells)
}

// Validate walks the page's free list and checks it against the header. A
// healthy page cannot fail these checks; they exist to surface free-list
// corruption from double frees or stray writes.
func (p *pageHeader) Validate() error {
	if p.magic != pageMagic {
		return errors.Errorf("page header magic is %#x, want %#x", p.magic, pageMagic)
	}
	if !validClassSize(p.blockSize) {
		return errors.Errorf("page block size %d is not a valid class size", p.blockSize)
	}

	expected := (PageSize - headerReserve) / p.blockSize
	if int(p.capacity) != expected {
		return errors.Errorf("page capacity is %d cells, want %d for block size %d", p.capacity, expected, p.blockSize)
	}

	walked := 0
	for off := p.freeHead; off != 0; off = p.cellNext(off) {
		if !p.containsCell(int(off)) {
			return errors.Errorf("free list offset %d does not address a cell of block size %d", off, p.blockSize)
		}
		walked++
		if walked > int(p.capacity) {
			return errors.Errorf("free list walk exceeded the page's %d cells, list is cyclic", p.capacity)
		}
	}

	if walked != int(p.freeCells) {
		return errors.Errorf("the listed number of free cells on the page (%d) does not match the actual number of free cells (%d)", p.freeCells, walked)
	}

	return nil
}

// CheckCorruption verifies the poison pattern on every free cell of the
// page. Poison is only written in debug_quarry builds; without the tag this
// always succeeds.
func (p *pageHeader) CheckCorruption() error {
	if !memutils.PoisonEnabled || p.blockSize <= 2 {
		return nil
	}
	for off := p.freeHead; off != 0; off = p.cellNext(off) {
		if !memutils.CheckPoison(unsafe.Add(p.cellPointer(off), 2), p.blockSize-2) {
			return errors.Errorf("free cell at page offset %d was written through after release", off)
		}
	}
	return nil
}

// AddDetailedStatistics sums this page's allocation statistics into stats.
func (p *pageHeader) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.PageCount++
	stats.MappedBytes += PageSize
	stats.FreeCellCount += int(p.freeCells)
	for i := p.liveCells(); i > 0; i-- {
		stats.AddAllocation(p.blockSize)
	}
}
