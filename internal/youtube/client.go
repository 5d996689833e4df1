package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"loungeskip/internal/httputil"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Client is the metadata/search data source. It needs an API key and is only
// constructed when one is configured.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    httputil.NewClientWithTimeout(httputil.LookupTimeout),
		limiter: rate.NewLimiter(5, 5),
	}
}

func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 0)
	return c
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	query.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("metadata API returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}
	return json.RawMessage(body), nil
}

// ChannelID resolves the channel a video belongs to.
func (c *Client) ChannelID(ctx context.Context, videoID string) (string, error) {
	data, err := c.do(ctx, "/videos", url.Values{"id": {videoID}, "part": {"snippet"}})
	if err != nil {
		return "", err
	}

	var result struct {
		Items []struct {
			Kind    string `json:"kind"`
			Snippet struct {
				ChannelID string `json:"channelId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parsing video response: %w", err)
	}
	if len(result.Items) == 0 || result.Items[0].Kind != "youtube#video" {
		return "", fmt.Errorf("video %s not found", videoID)
	}
	return result.Items[0].Snippet.ChannelID, nil
}

// Channel is one channel search result. Subscribers is a decimal count or
// "Hidden" when the channel hides it.
type Channel struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subscribers string `json:"subscribers"`
}

// SearchChannels looks channels up by name, resolving each result's
// subscriber count for the setup UI.
func (c *Client) SearchChannels(ctx context.Context, q string) ([]Channel, error) {
	data, err := c.do(ctx, "/search", url.Values{
		"q":          {q},
		"part":       {"snippet"},
		"type":       {"channel"},
		"maxResults": {"5"},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []struct {
			Snippet struct {
				ChannelID    string `json:"channelId"`
				ChannelTitle string `json:"channelTitle"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	channels := make([]Channel, 0, len(result.Items))
	for _, item := range result.Items {
		subs, err := c.subscriberCount(ctx, item.Snippet.ChannelID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, Channel{
			ID:          item.Snippet.ChannelID,
			Title:       item.Snippet.ChannelTitle,
			Subscribers: subs,
		})
	}
	return channels, nil
}

func (c *Client) subscriberCount(ctx context.Context, channelID string) (string, error) {
	data, err := c.do(ctx, "/channels", url.Values{"id": {channelID}, "part": {"statistics"}})
	if err != nil {
		return "", err
	}

	var result struct {
		Items []struct {
			Statistics struct {
				SubscriberCount       string `json:"subscriberCount"`
				HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parsing channel response: %w", err)
	}
	if len(result.Items) == 0 {
		return "", fmt.Errorf("channel %s not found", channelID)
	}
	stats := result.Items[0].Statistics
	if stats.HiddenSubscriberCount {
		return "Hidden", nil
	}
	return stats.SubscriberCount, nil
}
