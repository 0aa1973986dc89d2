package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMapRegionRoundsToWholePages(t *testing.T) {
	region, err := mapRegion(MaxSmallSize + 1)
	require.NoError(t, err)

	require.Equal(t, PageSize, region.mapped, "1025 bytes plus the header fit one page")
	require.GreaterOrEqual(t, region.payload(), MaxSmallSize+1)
	require.Equal(t, regionMagic, region.magic)

	base := uintptr(unsafe.Pointer(region))
	require.Zero(t, base&uintptr(pageMask))
	require.Equal(t, base+uintptr(regionReserve), uintptr(region.userPointer()))

	require.NoError(t, unmapRegion(region))
}

func TestMapRegionSpansPages(t *testing.T) {
	region, err := mapRegion(PageSize)
	require.NoError(t, err)

	// The header pushes the payload past one page.
	require.Equal(t, 2*PageSize, region.mapped)
	require.NoError(t, unmapRegion(region))
}

func TestRegionListPushPrepends(t *testing.T) {
	var list regionList

	first, err := mapRegion(2000)
	require.NoError(t, err)
	second, err := mapRegion(3000)
	require.NoError(t, err)

	list.push(first)
	list.push(second)

	require.Equal(t, 2, list.count)
	require.Equal(t, second, list.head)
	require.Equal(t, first, second.next)
	require.Equal(t, second, first.prev)
	require.NoError(t, list.Validate())

	list.remove(first)
	require.Equal(t, 1, list.count)
	require.Nil(t, second.next)
	require.NoError(t, list.Validate())

	list.remove(second)
	require.True(t, list.IsEmpty())
	require.NoError(t, list.Validate())

	require.NoError(t, unmapRegion(first))
	require.NoError(t, unmapRegion(second))
}

func TestRegionListRemoveMiddle(t *testing.T) {
	var list regionList

	var regions []*regionHeader
	for i := 0; i < 3; i++ {
		region, err := mapRegion(5000)
		require.NoError(t, err)
		list.push(region)
		regions = append(regions, region)
	}

	list.remove(regions[1])
	require.Equal(t, 2, list.count)
	require.NoError(t, list.Validate())
	require.Equal(t, regions[0], regions[2].next)
	require.Equal(t, regions[2], regions[0].prev)

	for _, region := range []*regionHeader{regions[0], regions[2]} {
		list.remove(region)
	}
	require.True(t, list.IsEmpty())

	for _, region := range regions {
		require.NoError(t, unmapRegion(region))
	}
}
