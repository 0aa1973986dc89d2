package heap

import "math/bits"

const (
	// PageSize is the size in bytes of every small page and the granularity
	// large regions are rounded up to. It must match the operating system's
	// page size so that mappings come back PageSize-aligned.
	PageSize = 4096

	pageMask = PageSize - 1

	// NumSizeClasses is the number of small size classes. Class i serves
	// blocks of 2^(i+1) bytes.
	NumSizeClasses = 10

	// MinBlockSize is the block size of the smallest size class.
	MinBlockSize = 2

	// MaxSmallSize is the block size of the largest size class. Requests
	// beyond it take the large-region path.
	MaxSmallSize = 1024
)

// SizeToClass maps a request of size bytes to the smallest size class whose
// block size can hold it. It returns -1 when the request is too big for any
// class and must be served by a dedicated region. SizeToClass(2) is class 0,
// SizeToClass(3) is class 1.
func SizeToClass(size int) int {
	if size > MaxSmallSize {
		return -1
	}
	if size <= MinBlockSize {
		return 0
	}
	return bits.Len(uint(size-1)) - 1
}

// ClassToSize returns the block size served by a size class. It is the exact
// inverse of SizeToClass on class boundaries.
func ClassToSize(class int) int {
	return 1 << (class + 1)
}

// validClassSize reports whether size is one of the ten block sizes a small
// page can carry. Release classification relies on this together with the
// page magic word.
func validClassSize(size int) bool {
	return size >= MinBlockSize && size <= MaxSmallSize && size&(size-1) == 0
}
