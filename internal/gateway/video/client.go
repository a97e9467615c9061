// Package video proxies catalog search so the API key never reaches
// clients and upstream quota stays under our own throttle.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adamtbull/friction-ai/internal/logger"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const maxResponseBytes = 4 << 20

var (
	// ErrNotConfigured reports a deployment without a catalog API key.
	ErrNotConfigured = errors.New("video catalog not configured")
	// ErrBusy reports that the client-side request budget is exhausted.
	ErrBusy = errors.New("video search budget exhausted")
)

// Video is the trimmed catalog entry served to clients.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	Thumbnail   string `json:"thumbnail"`
	PublishedAt string `json:"publishedAt"`
}

type Client struct {
	http    *http.Client
	baseURL string
	key     string
	limiter *rate.Limiter
}

// NewClient builds the upstream search client. The limiter caps calls at
// one per second with a small burst, well under the catalog's daily quota.
func NewClient(baseURL, key string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ID      videoID `json:"id"`
	Snippet snippet `json:"snippet"`
}

type videoID struct {
	VideoID string `json:"videoId"`
}

type snippet struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ChannelTitle string     `json:"channelTitle"`
	PublishedAt  string     `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
}

type thumbnails struct {
	Medium  thumbnail `json:"medium"`
	High    thumbnail `json:"high"`
	Default thumbnail `json:"default"`
}

type thumbnail struct {
	URL string `json:"url"`
}

// Search queries the catalog and maps the result to the client shape.
// Items without a video id (channels, playlists) are dropped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if c.key == "" {
		return nil, ErrNotConfigured
	}
	if !c.limiter.Allow() {
		return nil, ErrBusy
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", c.key)
	if query != "" {
		params.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	logger.Upstream("videos", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video catalog returned %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := jsonpkg.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("video catalog response: %w", err)
	}

	videos := make([]Video, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, Video{
			ID:          item.ID.VideoID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			Channel:     item.Snippet.ChannelTitle,
			Thumbnail:   pickThumbnail(item.Snippet.Thumbnails),
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return videos, nil
}

func pickThumbnail(t thumbnails) string {
	if t.Medium.URL != "" {
		return t.Medium.URL
	}
	if t.High.URL != "" {
		return t.High.URL
	}
	return t.Default.URL
}
