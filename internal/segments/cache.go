package segments

import (
	"context"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"loungeskip/internal/config"
	"loungeskip/internal/models"
	"loungeskip/internal/youtube"
)

const (
	// DefaultTTL applies to entries containing any unlocked segment; fully
	// locked results never expire.
	DefaultTTL = 5 * time.Minute

	segmentCacheSize   = 50
	whitelistCacheSize = 100
)

type entry struct {
	segments []models.Segment
	expires  time.Time // zero means never
}

// Cache resolves video ids to merged skip segments, shared by every device
// listener. Lookups for different keys never block each other; a concurrent
// double-fetch for the same key is harmless (last write wins).
type Cache struct {
	client      *Client
	meta        *youtube.Client // nil when no API key is configured
	whitelist   []config.Channel
	reportViews bool
	ttl         time.Duration

	entries *lru.Cache[string, entry]
	wl      *lru.Cache[string, bool]
}

func NewCache(client *Client, meta *youtube.Client, whitelist []config.Channel, reportViews bool) *Cache {
	entries, _ := lru.New[string, entry](segmentCacheSize)
	wl, _ := lru.New[string, bool](whitelistCacheSize)
	return &Cache{
		client:      client,
		meta:        meta,
		whitelist:   whitelist,
		reportViews: reportViews,
		ttl:         DefaultTTL,
		entries:     entries,
		wl:          wl,
	}
}

// GetSegments returns the merged skip segments for a video, fetching on a
// miss. Whitelisted videos resolve to an empty never-expiring entry without
// contacting the data source. The returned error is transport-only; upstream
// data problems degrade to an empty result internally.
func (c *Cache) GetSegments(ctx context.Context, videoID string) ([]models.Segment, error) {
	if e, ok := c.entries.Get(videoID); ok {
		if e.expires.IsZero() || time.Now().Before(e.expires) {
			return e.segments, nil
		}
		c.entries.Remove(videoID)
	}

	if c.IsWhitelisted(ctx, videoID) {
		c.entries.Add(videoID, entry{})
		return nil, nil
	}

	segs, ignoreTTL, err := c.client.FetchSegments(ctx, videoID)
	if err != nil {
		// Transient failure: do not cache, the next lookup retries.
		return nil, err
	}

	e := entry{segments: segs}
	if !ignoreTTL {
		e.expires = time.Now().Add(c.ttl)
	}
	c.entries.Add(videoID, e)
	return segs, nil
}

// IsWhitelisted reports whether the video's channel is on the configured
// whitelist. Results, including failed lookups, are cached in a small LRU;
// a failure counts as not-whitelisted until the entry is evicted, rather
// than re-querying the metadata API on every segment-cache miss.
func (c *Cache) IsWhitelisted(ctx context.Context, videoID string) bool {
	if c.meta == nil || len(c.whitelist) == 0 {
		return false
	}
	if v, ok := c.wl.Get(videoID); ok {
		return v
	}
	channelID, err := c.meta.ChannelID(ctx, videoID)
	if err != nil {
		log.Printf("segments: channel lookup for %s: %v", videoID, err)
		c.wl.Add(videoID, false)
		return false
	}
	listed := false
	for _, ch := range c.whitelist {
		if ch.ID == channelID {
			listed = true
			break
		}
	}
	c.wl.Add(videoID, listed)
	return listed
}

// MarkViewed reports one view per contributing id. Failures are logged and
// never retried; callers run this concurrently with the seek.
func (c *Cache) MarkViewed(ctx context.Context, uuids []string) {
	if !c.reportViews {
		return
	}
	for _, uuid := range uuids {
		if err := c.client.ReportViewed(ctx, uuid); err != nil {
			log.Printf("segments: viewed report for %s: %v", uuid, err)
		}
	}
}
