package segments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"loungeskip/internal/httputil"
	"loungeskip/internal/models"
)

const (
	defaultBaseURL = "https://sponsor.ajay.app/api"

	sbService    = "youtube"
	sbActionType = "skip"
)

// Client talks to the crowdsourced segment data source. Lookups use the
// privacy-preserving scheme: the query names only the first 4 hex chars of
// sha256(videoID) and the response is filtered down to the exact id locally.
type Client struct {
	baseURL    string
	categories []string
	http       *http.Client
	limiter    *rate.Limiter
}

func NewClient(categories []string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		categories: categories,
		http:       httputil.NewClient(),
		limiter:    rate.NewLimiter(10, 10),
	}
}

func NewClientWithBaseURL(categories []string, baseURL string) *Client {
	c := NewClient(categories)
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 0)
	return c
}

type apiVideo struct {
	VideoID  string       `json:"videoID"`
	Segments []apiSegment `json:"segments"`
}

type apiSegment struct {
	Segment [2]float64 `json:"segment"`
	UUID    string     `json:"UUID"`
	Locked  int        `json:"locked"`
}

// FetchSegments looks up, filters and merges the segments for one video.
// A network failure is returned to the caller; an upstream rejection or a
// malformed body degrades to an empty never-expiring result so a broken
// upstream is not hammered.
func (c *Client) FetchSegments(ctx context.Context, videoID string) ([]models.Segment, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	query := url.Values{}
	for _, cat := range c.categories {
		query.Add("category", cat)
	}
	query.Set("actionType", sbActionType)
	query.Set("service", sbService)

	u := c.baseURL + "/skipSegments/" + hashPrefix(videoID) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("segment lookup: %w", err)
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, false, fmt.Errorf("segment lookup: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("segments: lookup for %s (prefix %s) returned %d: %s",
			videoID, hashPrefix(videoID), resp.StatusCode, httputil.Truncate(body, 200))
		return nil, true, nil
	}

	var videos []apiVideo
	if err := json.Unmarshal(body, &videos); err != nil {
		log.Printf("segments: malformed response for %s: %v", videoID, err)
		return nil, true, nil
	}

	var raw []models.Segment
	for _, v := range videos {
		if v.VideoID != videoID {
			continue
		}
		for _, s := range v.Segments {
			raw = append(raw, models.Segment{
				Start:  s.Segment[0],
				End:    s.Segment[1],
				UUIDs:  []string{s.UUID},
				Locked: s.Locked == 1,
			})
		}
		break
	}

	merged, ignoreTTL := Merge(raw)
	return merged, ignoreTTL, nil
}

// ReportViewed tells the data source one segment was skipped, so the
// contributor gets credit.
func (c *Client) ReportViewed(ctx context.Context, uuid string) error {
	u := c.baseURL + "/viewedVideoSponsorTime/?" + url.Values{"UUID": {uuid}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("viewed report returned %d", resp.StatusCode)
	}
	return nil
}

func hashPrefix(videoID string) string {
	sum := sha256.Sum256([]byte(videoID))
	return hex.EncodeToString(sum[:])[:4]
}
