// Package mmap obtains backing memory for the heap using anonymous
// memory maps.

//go:build !plan9 && !windows && !js

package mmap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/quarrymem/quarry/memutils"
	"golang.org/x/sys/unix"
)

// Alloc allocates size bytes of zeroed, page-aligned, private memory and
// returns a slice containing them. size should be a multiple of the OS page
// size.
func Alloc(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, cerrors.Wrapf(memutils.MappingFailedError, "mmap of %d bytes: %s", size, err)
	}
	return mem, nil
}

// Free returns a mapping obtained from Alloc to the operating system. It
// must be passed the same slice (not a derived slice) that Alloc returned.
func Free(mem []byte) error {
	err := unix.Munmap(mem)
	if err != nil {
		return cerrors.Wrapf(memutils.MappingFailedError, "munmap of %d bytes: %s", len(mem), err)
	}
	return nil
}
