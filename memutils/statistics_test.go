package memutils_test

import (
	"math"
	"testing"

	"github.com/quarrymem/quarry/memutils"
	"github.com/stretchr/testify/require"
)

func TestDetailedStatisticsClear(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()

	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)
	require.Zero(t, stats.AllocationSizeMax)
	require.Zero(t, stats.AllocationCount)
}

func TestDetailedStatisticsAddAllocation(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()

	stats.AddAllocation(64)
	stats.AddAllocation(8)
	stats.AddAllocation(1024)

	require.Equal(t, 3, stats.AllocationCount)
	require.Equal(t, 1096, stats.AllocationBytes)
	require.Equal(t, 8, stats.AllocationSizeMin)
	require.Equal(t, 1024, stats.AllocationSizeMax)
}

func TestDetailedStatisticsMerge(t *testing.T) {
	var a, b memutils.DetailedStatistics
	a.Clear()
	b.Clear()

	a.PageCount = 2
	a.MappedBytes = 8192
	a.AddAllocation(16)

	b.RegionCount = 1
	b.MappedBytes = 65536
	b.AddAllocation(60000)
	b.FreeCellCount = 12

	a.AddDetailedStatistics(&b)

	require.Equal(t, 2, a.PageCount)
	require.Equal(t, 1, a.RegionCount)
	require.Equal(t, 2, a.AllocationCount)
	require.Equal(t, 73728, a.MappedBytes)
	require.Equal(t, 16, a.AllocationSizeMin)
	require.Equal(t, 60000, a.AllocationSizeMax)
	require.Equal(t, 12, a.FreeCellCount)
}
