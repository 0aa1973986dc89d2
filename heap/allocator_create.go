package heap

import (
	"github.com/dolthub/swiss"
	"github.com/quarrymem/quarry/heap/internal/utils"
	"github.com/quarrymem/quarry/memutils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateSynchronized wraps every public entry point of the
	// allocator in a single mutex. Without it the allocator follows the
	// single-threaded contract and the consumer must guarantee it is used
	// from only one goroutine at a time.
	AllocatorCreateSynchronized CreateFlags = 1 << iota
)

func (f CreateFlags) String() string {
	if f&AllocatorCreateSynchronized != 0 {
		return "AllocatorCreateSynchronized"
	}
	return ""
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// Logger is the structured logger the allocator emits debug-level
	// events to (page provisioning, region mapping and unmapping, ignored
	// releases). When nil, slog.Default() is used.
	Logger *slog.Logger
}

// regionIndexSizeHint is the initial size of the large-region index. The
// index grows as needed; this only avoids rehashing tiny heaps.
const regionIndexSizeHint = 16

// New creates an empty Allocator. No memory is mapped until the first
// allocation.
func New(options CreateOptions) *Allocator {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	memutils.DebugCheckPow2(uint(PageSize), "PageSize")

	return &Allocator{
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&AllocatorCreateSynchronized != 0,
		},
		logger:      logger,
		regionIndex: swiss.NewMap[uintptr, *regionHeader](regionIndexSizeHint),
	}
}
