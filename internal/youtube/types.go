package youtube

import (
	"encoding/json"
	"time"
)

// VideoSelectionOptions controls which videos ListTargetVideos resolves.
// When VideoID is set, only that video is considered; otherwise the Last
// most recently published Shorts are returned. Last values below 1 are
// clamped to 1.
type VideoSelectionOptions struct {
	VideoID string
	Last    int
}

// ShortVideo is the identity and static attributes of one short-form
// video. Instances are immutable once fetched and re-fetched on every
// pipeline run.
type ShortVideo struct {
	VideoID         string    `json:"videoId" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	Description     string    `json:"description"`
	PublishedAt     time.Time `json:"publishedAt" validate:"required"`
	DurationSeconds *float64  `json:"durationSeconds"`
	Tags            []string  `json:"tags"`
	ChannelID       string    `json:"channelId"`
}

// WindowMode tags a MetricsWindow with the reason that range was chosen.
type WindowMode string

const (
	// WindowFirst2hProxy is used for videos published within the last 2
	// hours. The analytics backend only has day-level granularity, so the
	// window is the publish day itself, an approximation rather than an
	// exact first-2-hours figure.
	WindowFirst2hProxy WindowMode = "first_2h_proxy"

	// WindowLast7Days is the default trailing 7-day window.
	WindowLast7Days WindowMode = "last_7_days"
)

// MetricsWindow is the date range used to query analytics for a video.
// Note documents the approximation behind the chosen range so downstream
// consumers can surface the caveat.
type MetricsWindow struct {
	Mode      WindowMode `json:"mode" validate:"required,oneof=first_2h_proxy last_7_days"`
	StartDate string     `json:"startDate" validate:"required"`
	EndDate   string     `json:"endDate" validate:"required"`
	Note      string     `json:"note" validate:"required"`
}

// ShortMetrics is a per-video performance snapshot. Every numeric field
// is nullable: absence of data is a first-class state, not an error.
// Numeric values are rounded to 2 decimal places before being returned
// to callers. Raw retains the backend response for auditability.
type ShortMetrics struct {
	VideoID                    string          `json:"videoId"`
	Impressions                *float64        `json:"impressions"`
	ImpressionClickThroughRate *float64        `json:"impressionClickThroughRate"`
	Views                      *float64        `json:"views"`
	AverageViewDuration        *float64        `json:"averageViewDuration"`
	AverageViewPercentage      *float64        `json:"averageViewPercentage"`
	First3sRetentionProxy      *float64        `json:"first3sRetentionProxy"`
	DurationSeconds            *float64        `json:"durationSeconds"`
	Window                     MetricsWindow   `json:"window"`
	Raw                        json.RawMessage `json:"raw"`
}

// FixtureMetrics is one entry of the mock fixture's metrics map. The
// video identity fields come from the fixture's video list instead.
type FixtureMetrics struct {
	Impressions                *float64      `json:"impressions"`
	ImpressionClickThroughRate *float64      `json:"impressionClickThroughRate"`
	Views                      *float64      `json:"views"`
	AverageViewDuration        *float64      `json:"averageViewDuration"`
	AverageViewPercentage      *float64      `json:"averageViewPercentage"`
	First3sRetentionProxy      *float64      `json:"first3sRetentionProxy"`
	Window                     MetricsWindow `json:"window"`
}

// Fixture is the schema of the mock fixture file used in offline mode.
type Fixture struct {
	Videos  []ShortVideo              `json:"videos" validate:"required,min=1,dive"`
	Metrics map[string]FixtureMetrics `json:"metrics" validate:"required,dive"`
}
