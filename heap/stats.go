package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/quarrymem/quarry/memutils"
)

// AddDetailedStatistics sums the whole heap's statistics into stats. The
// caller is expected to Clear stats first unless it is accumulating across
// several allocators.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for class := 0; class < NumSizeClasses; class++ {
		for page := a.classPages[class]; page != nil; page = page.next {
			page.AddDetailedStatistics(stats)
		}
	}

	a.regions.AddDetailedStatistics(stats)
}

// AddStatistics sums the heap's basic statistics into stats.
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	var detailed memutils.DetailedStatistics
	detailed.Clear()
	a.AddDetailedStatistics(&detailed)
	stats.AddStatistics(&detailed.Statistics)
}

// Validate performs internal consistency checks on every page list, every
// page's free list, the region list, and the region index. When the
// allocator is functioning correctly it cannot fail; it exists to surface
// corruption from double frees or foreign-pointer releases.
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for class := 0; class < NumSizeClasses; class++ {
		blockSize := ClassToSize(class)
		for page := a.classPages[class]; page != nil; page = page.next {
			if err := page.Validate(); err != nil {
				return err
			}
			if page.blockSize != blockSize {
				return errors.Errorf("page with block size %d is linked into class %d, which serves %d-byte blocks", page.blockSize, class, blockSize)
			}
		}
	}

	if err := a.regions.Validate(); err != nil {
		return err
	}

	if a.regionIndex.Count() != a.regions.count {
		return errors.Errorf("the region index holds %d entries but the region list holds %d", a.regionIndex.Count(), a.regions.count)
	}
	for r := a.regions.head; r != nil; r = r.next {
		indexed, ok := a.regionIndex.Get(uintptr(r.userPointer()))
		if !ok || indexed != r {
			return errors.Errorf("region at %p is missing from the region index", r.userPointer())
		}
	}

	return nil
}

// CheckCorruption verifies the poison pattern on every free cell of every
// page. Poison is only written in debug_quarry builds, so without that tag
// this always succeeds.
func (a *Allocator) CheckCorruption() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for class := 0; class < NumSizeClasses; class++ {
		for page := a.classPages[class]; page != nil; page = page.next {
			if err := page.CheckCorruption(); err != nil {
				return err
			}
		}
	}

	return nil
}

// BuildStatsString renders the heap's current shape as a JSON document.
// When detailed is true, every page and region is listed individually.
func (a *Allocator) BuildStatsString(detailed bool) string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	for class := 0; class < NumSizeClasses; class++ {
		for page := a.classPages[class]; page != nil; page = page.next {
			page.AddDetailedStatistics(&stats)
		}
	}
	a.regions.AddDetailedStatistics(&stats)

	total := obj.Name("Total").Object()
	total.Name("PageCount").Int(stats.PageCount)
	total.Name("RegionCount").Int(stats.RegionCount)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("AllocationBytes").Int(stats.AllocationBytes)
	total.Name("MappedBytes").Int(stats.MappedBytes)
	total.Name("FreeCellCount").Int(stats.FreeCellCount)
	total.End()

	if detailed {
		classes := obj.Name("SizeClasses").Array()
		for class := 0; class < NumSizeClasses; class++ {
			c := classes.Object()
			c.Name("BlockSize").Int(ClassToSize(class))

			pages := c.Name("Pages").Array()
			for page := a.classPages[class]; page != nil; page = page.next {
				p := pages.Object()
				p.Name("Capacity").Int(int(page.capacity))
				p.Name("FreeCells").Int(int(page.freeCells))
				p.End()
			}
			pages.End()
			c.End()
		}
		classes.End()

		regions := obj.Name("Regions")
		a.regions.BuildStatsString(regions)
	}

	obj.End()
	return string(writer.Bytes())
}
