package listener

import (
	"time"

	"loungeskip/internal/models"
)

// insideSegmentWindow is how far into playback a position may be while still
// treating an enclosing segment as skippable. Past it the viewer is assumed
// to have seeked into the segment on purpose.
const insideSegmentWindow = 2.0

// nextSegment picks the segment to act on for the given position and the
// point playback must reach before seeking. Segments are sorted and disjoint.
func nextSegment(segs []models.Segment, pos float64) (models.Segment, float64, bool) {
	for _, seg := range segs {
		if pos < insideSegmentWindow && seg.Start <= pos && pos < seg.End {
			return seg, pos, true
		}
		if seg.Start > pos {
			return seg, seg.Start, true
		}
	}
	return models.Segment{}, 0, false
}

// skipDelay converts the media-time distance to the skip point into wall time,
// compensating for handling latency since the event arrived, the playback
// speed, and the configured early-skip offset. A non-positive result means
// seek immediately.
func skipDelay(skipFrom, pos float64, elapsed time.Duration, speed float64, offset time.Duration) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	seconds := (skipFrom-pos-elapsed.Seconds())/speed - offset.Seconds()
	return time.Duration(seconds * float64(time.Second))
}
