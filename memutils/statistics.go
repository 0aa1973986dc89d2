package memutils

import "math"

// Statistics describes the basic shape of a heap or one of its size classes:
// how many backing mappings exist, how many bytes they cover, and how much of
// that space is currently handed out to callers.
type Statistics struct {
	PageCount       int
	RegionCount     int
	AllocationCount int
	MappedBytes     int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.PageCount = 0
	s.RegionCount = 0
	s.AllocationCount = 0
	s.MappedBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PageCount += other.PageCount
	s.RegionCount += other.RegionCount
	s.AllocationCount += other.AllocationCount
	s.MappedBytes += other.MappedBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics additionally tracks free-cell counts and the extremes of
// live allocation sizes.
type DetailedStatistics struct {
	Statistics
	FreeCellCount     int
	AllocationSizeMin int
	AllocationSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeCellCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeCellCount += other.FreeCellCount

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
