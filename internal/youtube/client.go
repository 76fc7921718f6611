package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ak-content/shorts-optimizer/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultDataBaseURL      = "https://www.googleapis.com/youtube/v3"
	defaultAnalyticsBaseURL = "https://youtubeanalytics.googleapis.com/v2/reports"

	// ShortsMaxSeconds is the duration cutoff for a video to count as a
	// Short. Live-mode discovery drops anything longer.
	ShortsMaxSeconds = 90

	maxPlaylistPages    = 5
	candidateMultiplier = 6
	detailChunkSize     = 50
	maxErrorBodyBytes   = 320

	httpTimeout = 30 * time.Second
)

// ErrNoUploadsPlaylist is returned when the authenticated channel's
// uploads playlist cannot be resolved.
var ErrNoUploadsPlaylist = errors.New("unable to determine uploads playlist for authenticated channel")

// Client resolves target Shorts and fetches normalized metrics snapshots
// for them, over either the live Google APIs or a static mock fixture.
// The auth token source and the fixture are lazily initialized and
// memoized for the lifetime of one instance; the client is otherwise
// stateless and safe to reuse across sequential calls.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client

	dataBaseURL      string
	analyticsBaseURL string
	now              func() time.Time

	initGroup singleflight.Group
	mu        sync.Mutex
	tokens    oauth2.TokenSource
	fixture   *Fixture
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: httpTimeout},
		dataBaseURL:      defaultDataBaseURL,
		analyticsBaseURL: defaultAnalyticsBaseURL,
		now:              time.Now,
	}
}

// ListTargetVideos resolves which videos to analyze. A specific VideoID
// returns that single video (or an empty list when not found); otherwise
// the Last most recently published Shorts are returned, newest first.
func (c *Client) ListTargetVideos(ctx context.Context, opts VideoSelectionOptions) ([]ShortVideo, error) {
	last := opts.Last
	if last < 1 {
		last = 1
	}

	if c.cfg.Optimizer.Mock {
		return c.listTargetVideosMock(opts.VideoID, last)
	}

	if opts.VideoID != "" {
		video, err := c.fetchVideoByID(ctx, opts.VideoID)
		if err != nil {
			return nil, err
		}
		if video == nil {
			return []ShortVideo{}, nil
		}
		return []ShortVideo{*video}, nil
	}

	return c.listRecentShortsLive(ctx, last)
}

// FetchMetrics fetches a normalized metrics snapshot for one resolved
// video. All numeric fields come back rounded to 2 decimal places.
func (c *Client) FetchMetrics(ctx context.Context, video ShortVideo) (ShortMetrics, error) {
	if c.cfg.Optimizer.Mock {
		return c.fetchMetricsMock(video)
	}
	return c.fetchMetricsLive(ctx, video)
}

func (c *Client) listTargetVideosMock(videoID string, last int) ([]ShortVideo, error) {
	fixture, err := c.loadFixture()
	if err != nil {
		return nil, err
	}

	videos := make([]ShortVideo, len(fixture.Videos))
	copy(videos, fixture.Videos)
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].PublishedAt.After(videos[j].PublishedAt)
	})

	if videoID != "" {
		for _, video := range videos {
			if video.VideoID == videoID {
				return []ShortVideo{video}, nil
			}
		}
		return []ShortVideo{}, nil
	}

	if len(videos) > last {
		videos = videos[:last]
	}
	return videos, nil
}

func (c *Client) fetchMetricsMock(video ShortVideo) (ShortMetrics, error) {
	fixture, err := c.loadFixture()
	if err != nil {
		return ShortMetrics{}, err
	}

	entry, ok := fixture.Metrics[video.VideoID]
	if !ok {
		return ShortMetrics{}, fmt.Errorf("%w for videoId=%s", ErrFixtureMetrics, video.VideoID)
	}

	return ShortMetrics{
		VideoID:                    video.VideoID,
		Impressions:                round2(entry.Impressions),
		ImpressionClickThroughRate: round2(entry.ImpressionClickThroughRate),
		Views:                      round2(entry.Views),
		AverageViewDuration:        round2(entry.AverageViewDuration),
		AverageViewPercentage:      round2(entry.AverageViewPercentage),
		First3sRetentionProxy:      round2(entry.First3sRetentionProxy),
		DurationSeconds:            video.DurationSeconds,
		Window:                     entry.Window,
		Raw:                        json.RawMessage(`{"source":"fixture"}`),
	}, nil
}

// Google Data API response shapes, trimmed to the fields this client
// reads.

type channelListResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videosListResponse struct {
	Items []videoListItem `json:"items"`
}

type videoListItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		PublishedAt time.Time `json:"publishedAt"`
		Tags        []string  `json:"tags"`
		ChannelID   string    `json:"channelId"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

type analyticsResponse struct {
	ColumnHeaders []struct {
		Name string `json:"name"`
	} `json:"columnHeaders"`
	Rows [][]any `json:"rows"`
}

// fetchGoogleRaw performs an authenticated GET and returns the response
// body. Non-2xx responses are fatal for the call and surface the status,
// status text, and a truncated body.
func (c *Client) fetchGoogleRaw(ctx context.Context, rawURL string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	slog.Debug("calling Google API", "path", req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("google api error %d: %s (%s)",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func (c *Client) fetchGoogleJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.fetchGoogleRaw(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) fetchVideoByID(ctx context.Context, videoID string) (*ShortVideo, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", videoID)
	params.Set("maxResults", "1")

	var resp videosListResponse
	if err := c.fetchGoogleJSON(ctx, c.dataBaseURL+"/videos?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	return shortVideoFromItem(resp.Items[0]), nil
}

// shortVideoFromItem maps one Data API item to a ShortVideo, or nil when
// the item is missing identity fields. Unparseable durations degrade to
// a nil duration instead of dropping the video.
func shortVideoFromItem(item videoListItem) *ShortVideo {
	if item.ID == "" || item.Snippet.Title == "" || item.Snippet.PublishedAt.IsZero() {
		return nil
	}

	var duration *float64
	if item.ContentDetails.Duration != "" {
		duration = ParseISODurationSeconds(item.ContentDetails.Duration)
	}

	tags := item.Snippet.Tags
	if tags == nil {
		tags = []string{}
	}

	return &ShortVideo{
		VideoID:         item.ID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		PublishedAt:     item.Snippet.PublishedAt,
		DurationSeconds: duration,
		Tags:            tags,
		ChannelID:       item.Snippet.ChannelID,
	}
}

// listRecentShortsLive discovers the channel's recent Shorts: resolve
// the uploads playlist, page through its items (bounded pages and a
// candidate cap to keep API cost proportional to the request), fetch
// video details in chunks, drop anything longer than ShortsMaxSeconds,
// then sort by publish date and truncate.
func (c *Client) listRecentShortsLive(ctx context.Context, last int) ([]ShortVideo, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("mine", "true")

	var channels channelListResponse
	if err := c.fetchGoogleJSON(ctx, c.dataBaseURL+"/channels?"+params.Encode(), &channels); err != nil {
		return nil, err
	}

	var uploadsPlaylistID string
	if len(channels.Items) > 0 {
		uploadsPlaylistID = channels.Items[0].ContentDetails.RelatedPlaylists.Uploads
	}
	if uploadsPlaylistID == "" {
		return nil, ErrNoUploadsPlaylist
	}

	var candidateIDs []string
	pageToken := ""
	for page := 0; page < maxPlaylistPages && len(candidateIDs) < last*candidateMultiplier; page++ {
		playlistParams := url.Values{}
		playlistParams.Set("part", "contentDetails")
		playlistParams.Set("playlistId", uploadsPlaylistID)
		playlistParams.Set("maxResults", "50")
		if pageToken != "" {
			playlistParams.Set("pageToken", pageToken)
		}

		var playlist playlistItemsResponse
		if err := c.fetchGoogleJSON(ctx, c.dataBaseURL+"/playlistItems?"+playlistParams.Encode(), &playlist); err != nil {
			return nil, err
		}

		for _, item := range playlist.Items {
			if item.ContentDetails.VideoID != "" {
				candidateIDs = append(candidateIDs, item.ContentDetails.VideoID)
			}
		}

		pageToken = playlist.NextPageToken
		if pageToken == "" {
			break
		}
	}

	uniqueIDs := dedupe(candidateIDs)
	var collected []ShortVideo

	for _, idChunk := range chunk(uniqueIDs, detailChunkSize) {
		videosParams := url.Values{}
		videosParams.Set("part", "snippet,contentDetails")
		videosParams.Set("id", strings.Join(idChunk, ","))
		videosParams.Set("maxResults", strconv.Itoa(len(idChunk)))

		var videos videosListResponse
		if err := c.fetchGoogleJSON(ctx, c.dataBaseURL+"/videos?"+videosParams.Encode(), &videos); err != nil {
			return nil, err
		}

		for _, item := range videos.Items {
			video := shortVideoFromItem(item)
			if video == nil {
				continue
			}
			if video.DurationSeconds != nil && *video.DurationSeconds > ShortsMaxSeconds {
				continue
			}
			collected = append(collected, *video)
		}

		if len(collected) >= last {
			break
		}
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].PublishedAt.After(collected[j].PublishedAt)
	})
	if len(collected) > last {
		collected = collected[:last]
	}
	return collected, nil
}

func (c *Client) fetchMetricsLive(ctx context.Context, video ShortVideo) (ShortMetrics, error) {
	window := windowForVideo(video, c.now())

	params := url.Values{}
	params.Set("ids", "channel==MINE")
	params.Set("startDate", window.StartDate)
	params.Set("endDate", window.EndDate)
	params.Set("dimensions", "video")
	params.Set("metrics", "impressions,impressionClickThroughRate,views,averageViewDuration,averageViewPercentage")
	params.Set("filters", "video=="+video.VideoID)

	body, err := c.fetchGoogleRaw(ctx, c.analyticsBaseURL+"?"+params.Encode())
	if err != nil {
		return ShortMetrics{}, err
	}

	var report analyticsResponse
	if err := json.Unmarshal(body, &report); err != nil {
		return ShortMetrics{}, fmt.Errorf("parsing analytics response: %w", err)
	}

	var row []any
	if len(report.Rows) > 0 {
		row = report.Rows[0]
	}

	getMetric := func(name string) *float64 {
		for i, header := range report.ColumnHeaders {
			if header.Name == name {
				if i < len(row) {
					return toNumber(row[i])
				}
				return nil
			}
		}
		return nil
	}

	proxy := c.fetchFirst3sRetentionProxy(ctx, video.VideoID, window, video.DurationSeconds)

	return ShortMetrics{
		VideoID:                    video.VideoID,
		Impressions:                round2(getMetric("impressions")),
		ImpressionClickThroughRate: round2(getMetric("impressionClickThroughRate")),
		Views:                      round2(getMetric("views")),
		AverageViewDuration:        round2(getMetric("averageViewDuration")),
		AverageViewPercentage:      round2(getMetric("averageViewPercentage")),
		First3sRetentionProxy:      proxy,
		DurationSeconds:            video.DurationSeconds,
		Window:                     window,
		Raw:                        json.RawMessage(body),
	}, nil
}

// fetchFirst3sRetentionProxy derives an approximate "still watching at
// 3 seconds" percentage from the elapsed-ratio audience retention curve.
// Best-effort: any failure yields nil and never aborts the metrics
// fetch.
func (c *Client) fetchFirst3sRetentionProxy(ctx context.Context, videoID string, window MetricsWindow, durationSeconds *float64) *float64 {
	if durationSeconds == nil || *durationSeconds <= 0 {
		return nil
	}

	proxy, err := c.queryRetentionProxy(ctx, videoID, window, *durationSeconds)
	if err != nil {
		slog.Debug("first-3s retention proxy unavailable", "videoId", videoID, "error", err)
		return nil
	}
	return proxy
}

func (c *Client) queryRetentionProxy(ctx context.Context, videoID string, window MetricsWindow, durationSeconds float64) (*float64, error) {
	params := url.Values{}
	params.Set("ids", "channel==MINE")
	params.Set("startDate", window.StartDate)
	params.Set("endDate", window.EndDate)
	params.Set("dimensions", "elapsedVideoTimeRatio")
	params.Set("metrics", "audienceWatchRatio")
	params.Set("filters", "video=="+videoID)

	var report analyticsResponse
	if err := c.fetchGoogleJSON(ctx, c.analyticsBaseURL+"?"+params.Encode(), &report); err != nil {
		return nil, err
	}
	if len(report.Rows) == 0 {
		return nil, nil
	}

	targetRatio := math.Min(1, 3/durationSeconds)

	bestDistance := math.Inf(1)
	var bestWatchRatio *float64

	for _, row := range report.Rows {
		if len(row) < 2 {
			continue
		}
		elapsed := toNumber(row[0])
		watchRatio := toNumber(row[1])
		if elapsed == nil || watchRatio == nil {
			continue
		}

		// Strict < keeps the first of equidistant candidates; the tie
		// break is implementation-defined, not a contract.
		distance := math.Abs(*elapsed - targetRatio)
		if distance < bestDistance {
			bestDistance = distance
			bestWatchRatio = watchRatio
		}
	}

	if bestWatchRatio == nil {
		return nil, nil
	}

	// The API may report the watch ratio as a fraction or already as a
	// percentage; only scale fractions.
	normalized := *bestWatchRatio
	if normalized <= 1 {
		normalized *= 100
	}
	return round2(&normalized), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func chunk(values []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(values); i += size {
		end := i + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[i:end])
	}
	return out
}
