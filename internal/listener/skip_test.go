package listener

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungeskip/internal/models"
)

func TestNextSegmentSelection(t *testing.T) {
	segs := []models.Segment{
		{Start: 10, End: 20, UUIDs: []string{"a"}},
		{Start: 30, End: 40, UUIDs: []string{"b"}},
	}

	t.Run("before first segment", func(t *testing.T) {
		seg, skipFrom, ok := nextSegment(segs, 0.5)
		require.True(t, ok)
		assert.Equal(t, 10.0, seg.Start)
		assert.Equal(t, 10.0, skipFrom)
	})

	t.Run("between segments", func(t *testing.T) {
		seg, skipFrom, ok := nextSegment(segs, 25)
		require.True(t, ok)
		assert.Equal(t, 30.0, seg.Start)
		assert.Equal(t, 30.0, skipFrom)
	})

	t.Run("inside a segment past the start window", func(t *testing.T) {
		// Position 15 is inside [10, 20) but too deep into playback to
		// count as a start-of-video landing; the next segment wins.
		seg, skipFrom, ok := nextSegment(segs, 15)
		require.True(t, ok)
		assert.Equal(t, 30.0, seg.Start)
		assert.Equal(t, 30.0, skipFrom)
	})

	t.Run("past all segments", func(t *testing.T) {
		_, _, ok := nextSegment(segs, 50)
		assert.False(t, ok)
	})

	t.Run("playback starts inside a segment", func(t *testing.T) {
		opening := []models.Segment{{Start: 0, End: 5, UUIDs: []string{"a"}}}
		seg, skipFrom, ok := nextSegment(opening, 0.5)
		require.True(t, ok)
		assert.Equal(t, 0.0, seg.Start)
		assert.Equal(t, 0.5, skipFrom, "skip from the current position, not the segment start")
	})

	t.Run("empty list", func(t *testing.T) {
		_, _, ok := nextSegment(nil, 0)
		assert.False(t, ok)
	})
}

func TestSkipDelay(t *testing.T) {
	t.Run("accounts for latency, speed and offset", func(t *testing.T) {
		d := skipDelay(10, 5, time.Second, 2, 500*time.Millisecond)
		assert.InDelta(t, 1.5, d.Seconds(), 0.001)
	})

	t.Run("normal speed no offset", func(t *testing.T) {
		d := skipDelay(10, 5, 0, 1, 0)
		assert.InDelta(t, 5.0, d.Seconds(), 0.001)
	})

	t.Run("already inside the segment", func(t *testing.T) {
		d := skipDelay(5, 5, 200*time.Millisecond, 1, 0)
		assert.LessOrEqual(t, d, time.Duration(0))
	})

	t.Run("nonsense speed treated as realtime", func(t *testing.T) {
		d := skipDelay(10, 5, 0, 0, 0)
		assert.InDelta(t, 5.0, d.Seconds(), 0.001)
	})
}
