package quarry_test

import (
	"encoding/json"
	"sync"
	"testing"
	"unsafe"

	"github.com/quarrymem/quarry"
	"github.com/stretchr/testify/require"
)

func TestFacadeRoundTrip(t *testing.T) {
	quarry.Release(nil)

	p := quarry.Allocate(48)
	require.NotNil(t, p)
	require.Equal(t, 64, quarry.Capacity(p))

	mem := unsafe.Slice((*byte)(p), 48)
	for i := range mem {
		mem[i] = byte(i)
	}
	for i := range mem {
		require.Equal(t, byte(i), mem[i])
	}

	quarry.Release(p)
	require.Nil(t, quarry.Allocate(0))
}

func TestFacadeZeroedAndResize(t *testing.T) {
	p := quarry.AllocateZeroed(8, 8)
	require.NotNil(t, p)
	for _, b := range unsafe.Slice((*byte)(p), 64) {
		require.Zero(t, b)
	}

	q := quarry.Resize(p, 4000)
	require.NotNil(t, q)
	for _, b := range unsafe.Slice((*byte)(q), 64) {
		require.Zero(t, b, "leading bytes survive the move")
	}

	require.Nil(t, quarry.Resize(q, 0))
}

func TestFacadeStatsString(t *testing.T) {
	p := quarry.Allocate(256)
	defer quarry.Release(p)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(quarry.StatsString(true)), &doc))
	require.Contains(t, doc, "Total")
}

func TestFacadeIsSynchronized(t *testing.T) {
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				size := 1 + (worker+i*7)%1500
				ptr := quarry.Allocate(size)
				if ptr == nil {
					continue
				}
				quarry.Release(ptr)
			}
		}(worker)
	}
	wg.Wait()
}
