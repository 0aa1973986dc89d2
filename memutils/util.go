package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment. alignment must
// be a power of two.
func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) & ^(alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment. alignment must be
// a power of two.
func AlignDown[T Number](value T, alignment T) T {
	return value & ^(alignment - 1)
}

// IsAligned returns whether value is a multiple of alignment. alignment
// must be a power of two.
func IsAligned[T Number](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

// RoundUpPages returns the smallest multiple of pageSize that holds size
// bytes. pageSize must be a power of two.
func RoundUpPages(size int, pageSize int) int {
	return AlignUp(size, pageSize)
}
