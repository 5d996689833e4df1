package segments

import (
	"sort"

	"loungeskip/internal/models"
)

// MergeGap is the maximum gap, in seconds, between two segments that still
// gets skipped as one region. Seeking twice across a sub-second gap looks
// like stutter on the device.
const MergeGap = 1.0

// Merge normalizes a raw segment list into non-overlapping regions sorted by
// start. Overlapping segments are widened to a common boundary, then any
// segment starting within MergeGap of the previous region's end is folded
// into it, unioning the contributing report ids.
//
// The second return is true iff every input segment was locked
// (community-reviewed), which callers use to cache the result indefinitely.
func Merge(raw []models.Segment) ([]models.Segment, bool) {
	ignoreTTL := true
	for _, s := range raw {
		ignoreTTL = ignoreTTL && s.Locked
	}
	if len(raw) == 0 {
		return nil, ignoreTTL
	}

	segs := make([]models.Segment, len(raw))
	for i, s := range raw {
		segs[i] = s
		segs[i].UUIDs = append([]string(nil), s.UUIDs...)
	}

	// Propagate overlapping end boundaries forward.
	sort.Slice(segs, func(i, j int) bool { return segs[i].End < segs[j].End })
	for i := range segs {
		for j := range segs {
			if segs[j].Start <= segs[i].End && segs[i].End <= segs[j].End {
				segs[i].End = segs[j].End
			}
		}
	}

	// Symmetric backward extension of start boundaries.
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	for i := len(segs) - 1; i >= 0; i-- {
		for j := len(segs) - 1; j >= 0; j-- {
			if segs[j].Start <= segs[i].Start && segs[i].Start <= segs[j].End {
				segs[i].Start = segs[j].Start
			}
		}
	}

	out := make([]models.Segment, 0, len(segs))
	for _, s := range segs {
		if n := len(out); n > 0 && s.Start-out[n-1].End <= MergeGap {
			prev := &out[n-1]
			if s.End > prev.End {
				prev.End = s.End
			}
			prev.UUIDs = append(prev.UUIDs, s.UUIDs...)
			prev.Locked = prev.Locked && s.Locked
			continue
		}
		out = append(out, s)
	}
	return out, ignoreTTL
}
